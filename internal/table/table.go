// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

// Package table renders field/value tables as text, JSON or xlsx.
package table

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// output formats
const (
	FormatTxt  = "txt"
	FormatJson = "json"
	FormatXlsx = "xlsx"
)

var FormatOptions = []string{FormatTxt, FormatJson, FormatXlsx}

const NoDataFound = "No data found."

// Field represents the values for a field in a table
type Field struct {
	Name   string
	Values []string
}

// TableValues is a named table. HasRows tables print field names as column headers and
// one line per value index, other tables print one "name: value" line per field.
type TableValues struct {
	Name        string
	HasRows     bool
	NoDataFound string
	Fields      []Field
}

// Render renders the table in one of FormatOptions
func Render(tableValues TableValues, format string) ([]byte, error) {
	switch format {
	case FormatTxt:
		return []byte(RenderText(tableValues)), nil
	case FormatJson:
		return RenderJSON(tableValues)
	case FormatXlsx:
		return RenderXlsx(tableValues)
	}
	return nil, fmt.Errorf("format options are: %s", strings.Join(FormatOptions, ", "))
}

func isEmpty(tableValues TableValues) bool {
	return len(tableValues.Fields) == 0 || len(tableValues.Fields[0].Values) == 0
}

// RenderText renders an aligned plain text table
func RenderText(tableValues TableValues) string {
	var sb strings.Builder
	if tableValues.Name != "" {
		sb.WriteString(tableValues.Name + "\n")
		sb.WriteString(strings.Repeat("=", len(tableValues.Name)) + "\n")
	}
	if isEmpty(tableValues) {
		msg := NoDataFound
		if tableValues.NoDataFound != "" {
			msg = tableValues.NoDataFound
		}
		sb.WriteString(msg + "\n")
		return sb.String()
	}
	if tableValues.HasRows {
		// the longest item per column, the last column only takes the space of its values
		maxFieldLen := make([]int, len(tableValues.Fields))
		for i, field := range tableValues.Fields {
			if i == len(tableValues.Fields)-1 {
				continue
			}
			maxFieldLen[i] = len(field.Name)
			for _, val := range field.Values {
				maxFieldLen[i] = max(maxFieldLen[i], len(val))
			}
		}
		columnSpacing := 3
		var header, underline []string
		for i, field := range tableValues.Fields {
			header = append(header, fmt.Sprintf("%-*s", maxFieldLen[i]+columnSpacing, field.Name))
			underline = append(underline, fmt.Sprintf("%-*s", maxFieldLen[i]+columnSpacing, strings.Repeat("-", len(field.Name))))
		}
		sb.WriteString(strings.TrimRight(strings.Join(header, ""), " ") + "\n")
		sb.WriteString(strings.TrimRight(strings.Join(underline, ""), " ") + "\n")
		for row := range len(tableValues.Fields[0].Values) {
			var line []string
			for i, field := range tableValues.Fields {
				line = append(line, fmt.Sprintf("%-*s", maxFieldLen[i]+columnSpacing, field.Values[row]))
			}
			sb.WriteString(strings.TrimRight(strings.Join(line, ""), " ") + "\n")
		}
		return sb.String()
	}
	maxFieldNameLen := 0
	for _, field := range tableValues.Fields {
		maxFieldNameLen = max(maxFieldNameLen, len(field.Name))
	}
	for _, field := range tableValues.Fields {
		var value string
		if len(field.Values) > 0 {
			value = field.Values[0]
		}
		sb.WriteString(strings.TrimRight(fmt.Sprintf("%s%-*s %s", field.Name, maxFieldNameLen-len(field.Name)+1, ":", value), " ") + "\n")
	}
	return sb.String()
}

// RenderJSON renders a list of records keyed by field name
func RenderJSON(tableValues TableValues) ([]byte, error) {
	records := []map[string]string{}
	if !isEmpty(tableValues) {
		for recordIdx := range len(tableValues.Fields[0].Values) {
			record := make(map[string]string)
			for _, field := range tableValues.Fields {
				record[field.Name] = field.Values[recordIdx]
			}
			records = append(records, record)
		}
	}
	return json.MarshalIndent(records, "", "  ")
}

func cellName(col int, row int) (name string) {
	columnName, err := excelize.ColumnNumberToName(col)
	if err != nil {
		return
	}
	name, err = excelize.JoinCellName(columnName, row)
	if err != nil {
		return
	}
	return
}

func getValueForCell(value string) (val any) {
	intValue, err := strconv.Atoi(value)
	if err == nil {
		val = intValue
		return
	}
	val = value
	return
}

// SheetName is the name of the single sheet written by RenderXlsx
const SheetName = "Report"

// RenderXlsx renders the table into a single sheet workbook
func RenderXlsx(tableValues TableValues) (out []byte, err error) {
	f := excelize.NewFile()
	defer f.Close()
	sheetName := SheetName
	_ = f.SetSheetName("Sheet1", sheetName)
	_ = f.SetColWidth(sheetName, "A", "L", 25)
	boldStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{
			Bold: true,
		},
	})
	alignLeft, _ := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{
			Horizontal: "left",
		},
	})
	row := 1
	if tableValues.Name != "" {
		_ = f.SetCellValue(sheetName, cellName(1, row), tableValues.Name)
		_ = f.SetCellStyle(sheetName, cellName(1, row), cellName(1, row), boldStyle)
		row++
	}
	switch {
	case isEmpty(tableValues):
		msg := NoDataFound
		if tableValues.NoDataFound != "" {
			msg = tableValues.NoDataFound
		}
		_ = f.SetCellValue(sheetName, cellName(1, row), msg)
	case tableValues.HasRows:
		for col, field := range tableValues.Fields {
			_ = f.SetCellValue(sheetName, cellName(col+1, row), field.Name)
			_ = f.SetCellStyle(sheetName, cellName(col+1, row), cellName(col+1, row), boldStyle)
		}
		row++
		for tableRow := range len(tableValues.Fields[0].Values) {
			for col, field := range tableValues.Fields {
				_ = f.SetCellValue(sheetName, cellName(col+1, row), getValueForCell(field.Values[tableRow]))
				_ = f.SetCellStyle(sheetName, cellName(col+1, row), cellName(col+1, row), alignLeft)
			}
			row++
		}
	default:
		for _, field := range tableValues.Fields {
			var value string
			if len(field.Values) > 0 {
				value = field.Values[0]
			}
			_ = f.SetCellValue(sheetName, cellName(1, row), field.Name)
			_ = f.SetCellStyle(sheetName, cellName(1, row), cellName(1, row), boldStyle)
			_ = f.SetCellValue(sheetName, cellName(2, row), getValueForCell(value))
			_ = f.SetCellStyle(sheetName, cellName(2, row), cellName(2, row), alignLeft)
			row++
		}
	}
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	_, err = f.WriteTo(w)
	if err != nil {
		err = fmt.Errorf("failed to write xlsx to buffer: %v", err)
		return
	}
	if err = w.Flush(); err != nil {
		return
	}
	out = buf.Bytes()
	return
}

// ValidateFormat checks that format is one of FormatOptions
func ValidateFormat(format string) error {
	if !slices.Contains(FormatOptions, format) {
		return fmt.Errorf("format options are: %s", strings.Join(FormatOptions, ", "))
	}
	return nil
}
