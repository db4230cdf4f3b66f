package document

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
)

// ExcelLoader 表格加载器（元素模式）
// 每个非空行生成一个Document
type ExcelLoader struct{}

// NewExcelLoader 创建一个新的表格加载器
func NewExcelLoader() *ExcelLoader {
	return &ExcelLoader{}
}

// sheetRows 一个工作表的所有行
type sheetRows struct {
	name string
	rows [][]string
}

// Load 加载表格文件
func (l *ExcelLoader) Load(path string) ([]Document, error) {
	var (
		sheets   []sheetRows
		filetype string
		err      error
	)

	switch strings.ToLower(filepath.Ext(path)) {
	case ".xls":
		filetype = MimeXLS
		sheets, err = readXLS(path)
	default:
		filetype = MimeXLSX
		sheets, err = readXLSX(path)
	}
	if err != nil {
		return nil, err
	}

	var docs []Document
	for i, sheet := range sheets {
		var columns []string
		for r, row := range sheet.rows {
			cells := nonEmptyCells(row)
			if len(cells) == 0 {
				continue
			}
			// 第一条非空行作为列名
			if columns == nil {
				columns = cells
			}

			meta := baseMetadata(path, filetype)
			meta[MetaPageName] = sheet.name
			meta[MetaPageNumber] = i + 1
			meta[MetaRowNumber] = r + 1
			meta[MetaCategory] = CategoryTableRow
			meta[MetaColumns] = columns

			docs = append(docs, Document{
				Content:  strings.Join(cells, " "),
				Metadata: meta,
			})
		}
	}

	return docs, nil
}

// readXLSX 使用excelize读取 .xlsx
func readXLSX(path string) ([]sheetRows, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open xlsx: %w", err)
	}
	defer f.Close()

	var sheets []sheetRows
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil {
			return nil, fmt.Errorf("failed to read sheet %s: %w", name, err)
		}
		sheets = append(sheets, sheetRows{name: name, rows: rows})
	}
	return sheets, nil
}

// readXLS 读取旧版 .xls
func readXLS(path string) ([]sheetRows, error) {
	wb, err := xls.Open(path, "utf-8")
	if err != nil {
		return nil, fmt.Errorf("failed to open xls: %w", err)
	}

	var sheets []sheetRows
	for i := 0; i < wb.NumSheets(); i++ {
		sheet := wb.GetSheet(i)
		if sheet == nil {
			continue
		}

		rows := make([][]string, 0, int(sheet.MaxRow)+1)
		for r := 0; r <= int(sheet.MaxRow); r++ {
			row := sheet.Row(r)
			if row == nil {
				rows = append(rows, nil)
				continue
			}
			var cells []string
			for c := row.FirstCol(); c < row.LastCol(); c++ {
				cells = append(cells, row.Col(c))
			}
			rows = append(rows, cells)
		}
		sheets = append(sheets, sheetRows{name: sheet.Name, rows: rows})
	}
	return sheets, nil
}

func nonEmptyCells(row []string) []string {
	var cells []string
	for _, cell := range row {
		if cell = strings.TrimSpace(cell); cell != "" {
			cells = append(cells, cell)
		}
	}
	return cells
}
