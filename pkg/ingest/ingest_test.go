package ingest

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/FulgerX2007/csv-scatter-reports/pkg/model"
	"github.com/xuri/excelize/v2"
)

const irisCSV = `sepal_length,sepal_width,species,notes
5.1,3.5,setosa,first
4.9,3.0,setosa,
7.0,3.2,versicolor,third
6.3,,virginica,fourth
`

func TestParseCSV_ClassifiesColumns(t *testing.T) {
	ds, err := ParseCSV(context.Background(), "iris.csv", []byte(irisCSV))
	if err != nil {
		t.Fatalf("ParseCSV failed: %v", err)
	}

	if ds.Rows != 4 {
		t.Errorf("expected 4 rows, got %d", ds.Rows)
	}

	names := ds.ColumnNames()
	want := []string{"sepal_length", "sepal_width", "species", "notes"}
	if len(names) != len(want) {
		t.Fatalf("expected columns %v, got %v", want, names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("column %d: expected %s, got %s", i, want[i], names[i])
		}
	}

	numeric := ds.NumericColumns()
	if len(numeric) != 2 || numeric[0] != "sepal_length" || numeric[1] != "sepal_width" {
		t.Errorf("axis options must be the numeric columns only, got %v", numeric)
	}

	width, _ := ds.Column("sepal_width")
	if v, ok := width.Float(3); ok || !math.IsNaN(v) {
		t.Errorf("expected missing value in row 3, got %v (present=%v)", v, ok)
	}
	if v, ok := width.Float(2); !ok || v != 3.2 {
		t.Errorf("expected 3.2 in row 2, got %v", v)
	}

	species, _ := ds.Column("species")
	if species.IsNumeric() {
		t.Errorf("species should be categorical")
	}
	distinct := ds.Distinct("species")
	if len(distinct) != 3 || distinct[0] != "setosa" || distinct[2] != "virginica" {
		t.Errorf("unexpected distinct values %v", distinct)
	}
}

func TestParseCSV_Errors(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr error
		message string
	}{
		{
			name:    "empty file",
			data:    "   \n",
			wantErr: model.ErrMalformedInput,
			message: model.MsgMalformedInput,
		},
		{
			name:    "unterminated quote",
			data:    "a,b\n\"1,2\n3,4\n",
			wantErr: model.ErrMalformedInput,
			message: model.MsgMalformedInput,
		},
		{
			name:    "no numeric columns",
			data:    "city,country\nLima,Peru\nQuito,Ecuador\n",
			wantErr: model.ErrNoNumericColumns,
			message: "The CSV file must contain at least one numeric column.",
		},
		{
			name:    "header without rows",
			data:    "a,b\n",
			wantErr: model.ErrNoNumericColumns,
			message: model.MsgNoNumericColumns,
		},
		{
			name:    "header followed by blank lines",
			data:    "a\n\n\n",
			wantErr: model.ErrNoNumericColumns,
			message: model.MsgNoNumericColumns,
		},
		{
			name:    "only boolean and text columns",
			data:    "flag,name\ntrue,ann\nfalse,bob\n",
			wantErr: model.ErrNoNumericColumns,
			message: model.MsgNoNumericColumns,
		},
		{
			name:    "ragged row",
			data:    "a,b\n1,2\n3,4,5\n",
			wantErr: model.ErrMalformedInput,
			message: model.MsgMalformedInput,
		},
	}

	parsers := map[string]func(context.Context, string, []byte) (*model.Dataset, error){
		"ParseCSV": ParseCSV,
		"Parse":    Parse,
	}

	for _, tt := range tests {
		for parserName, parse := range parsers {
			t.Run(parserName+"/"+tt.name, func(t *testing.T) {
				ds, err := parse(context.Background(), "upload.csv", []byte(tt.data))
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v (dataset %+v)", tt.wantErr, err, ds)
				}
				if got := model.UserMessage(err); got != tt.message {
					t.Errorf("expected message %q, got %q", tt.message, got)
				}
			})
		}
	}
}

func TestParseCSV_DuplicateHeaders(t *testing.T) {
	ds, err := ParseCSV(context.Background(), "dup.csv", []byte("a,a,b,,a\n1,2,3,4,5\n6,7,8,9,10\n"))
	if err != nil {
		t.Fatalf("ParseCSV failed: %v", err)
	}

	want := []string{"a", "a.1", "b", "Unnamed: 3", "a.2"}
	names := ds.ColumnNames()
	if len(names) != len(want) {
		t.Fatalf("expected columns %v, got %v", want, names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("column %d: expected %q, got %q", i, want[i], names[i])
		}
	}

	second, _ := ds.Column("a.1")
	if v, ok := second.Float(1); !ok || v != 7 {
		t.Errorf("expected a.1 row 1 to be 7, got %v", v)
	}
}

func TestParseCSV_BooleanColumnsAreCategorical(t *testing.T) {
	ds, err := ParseCSV(context.Background(), "flags.csv", []byte("flag,v\ntrue,1\nfalse,2\n,3\n"))
	if err != nil {
		t.Fatalf("ParseCSV failed: %v", err)
	}

	numeric := ds.NumericColumns()
	if len(numeric) != 1 || numeric[0] != "v" {
		t.Errorf("only v should be an axis option, got %v", numeric)
	}

	flag, _ := ds.Column("flag")
	if flag.IsNumeric() {
		t.Fatalf("flag should be categorical")
	}
	if ds.Cell(0, flag) != "true" || ds.Cell(1, flag) != "false" || ds.Cell(2, flag) != "" {
		t.Errorf("flag should keep its source text, got %v", flag.Text)
	}
	if stats := Describe(ds); len(stats.Columns) != 1 {
		t.Errorf("statistics should skip flag, got %v", stats.Columns)
	}
}

func TestParseCSV_StripsBOM(t *testing.T) {
	ds, err := ParseCSV(context.Background(), "excel.csv", []byte("\ufeffa,b\n1,2\n"))
	if err != nil {
		t.Fatalf("ParseCSV failed: %v", err)
	}
	if names := ds.ColumnNames(); names[0] != "a" {
		t.Errorf("expected first column %q, got %q", "a", names[0])
	}
}

func TestParseXLSX(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := "Sheet1"
	f.SetCellValue(sheet, "A1", "height")
	f.SetCellValue(sheet, "B1", "weight")
	f.SetCellValue(sheet, "C1", "team")
	f.SetCellValue(sheet, "D1", "height")
	f.SetCellValue(sheet, "A2", 180)
	f.SetCellValue(sheet, "B2", 75.5)
	f.SetCellValue(sheet, "C2", "red")
	f.SetCellValue(sheet, "A3", 165)
	f.SetCellValue(sheet, "C3", "blue")

	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("failed to write workbook: %v", err)
	}

	ds, err := Parse(context.Background(), "players.XLSX", buf.Bytes())
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if ds.Rows != 2 {
		t.Errorf("expected 2 rows, got %d", ds.Rows)
	}
	if names := ds.ColumnNames(); names[3] != "height.1" {
		t.Errorf("duplicate header should be suffixed, got %v", names)
	}

	weight, _ := ds.Column("weight")
	if !weight.IsNumeric() {
		t.Fatalf("weight should be numeric")
	}
	if _, ok := weight.Float(1); ok {
		t.Errorf("short row should leave weight missing")
	}

	team, _ := ds.Column("team")
	if team.IsNumeric() {
		t.Errorf("team should be categorical")
	}
}

func TestParseXLSX_Malformed(t *testing.T) {
	_, err := ParseXLSX("broken.xlsx", []byte("not a zip archive"))
	if !errors.Is(err, model.ErrMalformedInput) {
		t.Errorf("expected ErrMalformedInput, got %v", err)
	}
}

func TestDescribe(t *testing.T) {
	ds, err := ParseCSV(context.Background(), "iris.csv", []byte(irisCSV))
	if err != nil {
		t.Fatalf("ParseCSV failed: %v", err)
	}

	stats := Describe(ds)
	if len(stats.Columns) != 2 {
		t.Fatalf("expected stats for 2 numeric columns, got %v", stats.Columns)
	}

	tests := []struct {
		stat   string
		column string
		want   float64
	}{
		{"count", "sepal_length", 4},
		{"mean", "sepal_length", 5.825},
		{"min", "sepal_length", 4.9},
		{"max", "sepal_length", 7.0},
		{"50%", "sepal_length", 5.7},
		{"25%", "sepal_length", 5.05},
		{"75%", "sepal_length", 6.475},
		{"count", "sepal_width", 3},
		{"mean", "sepal_width", 3.2333333333333334},
	}

	for _, tt := range tests {
		got, ok := stats.Get(tt.stat, tt.column)
		if !ok {
			t.Errorf("%s/%s missing", tt.stat, tt.column)
			continue
		}
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("%s/%s: expected %v, got %v", tt.stat, tt.column, tt.want, got)
		}
	}

	std, _ := stats.Get("std", "sepal_length")
	if math.Abs(std-0.9979144) > 1e-6 {
		t.Errorf("expected sample std 0.9979, got %v", std)
	}
}

func TestDescribe_SingleValueHasUndefinedStd(t *testing.T) {
	ds, err := ParseCSV(context.Background(), "one.csv", []byte("value\n42\n"))
	if err != nil {
		t.Fatalf("ParseCSV failed: %v", err)
	}

	stats := Describe(ds)
	if std, _ := stats.Get("std", "value"); !math.IsNaN(std) {
		t.Errorf("std of a single value should be NaN, got %v", std)
	}
	if mean, _ := stats.Get("mean", "value"); mean != 42 {
		t.Errorf("expected mean 42, got %v", mean)
	}
}
