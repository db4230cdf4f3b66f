package document

import (
	"archive/zip"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"unicode/utf8"

	"github.com/jung-kurt/gofpdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/fyerfyer/doc-rag-assistant/internal/document/documenttest"
)

func createTempFile(t *testing.T, name, content string) string {
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func createTempPDF(t *testing.T, pages ...string) string {
	path := filepath.Join(t.TempDir(), "report.pdf")

	pdf := gofpdf.New("P", "mm", "A4", "")
	// 核心字体使用cp1252编码
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	for _, text := range pages {
		pdf.AddPage()
		if text == "" {
			continue
		}
		pdf.SetFont("Arial", "", 12)
		pdf.MultiCell(0, 10, tr(text), "", "", false)
	}
	require.NoError(t, pdf.OutputFileAndClose(path))
	return path
}

// createZip 按给定的文件内容生成OpenXML包
func createZip(t *testing.T, name string, files map[string]string) string {
	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	for entry, content := range files {
		w, err := zw.Create(entry)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return path
}

const docxBody = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>Project plan</w:t></w:r></w:p>
    <w:p><w:r><w:t xml:space="preserve">Phase one starts </w:t></w:r><w:r><w:t>in March.</w:t></w:r></w:p>
    <w:p></w:p>
    <w:tbl><w:tr><w:tc><w:p><w:r><w:t>Budget cell</w:t></w:r></w:p></w:tc></w:tr></w:tbl>
  </w:body>
</w:document>`

const slideOne = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<p:sld xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main"
       xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships"
       xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main">
  <p:cSld><p:spTree>
    <p:sp>
      <p:nvSpPr><p:cNvPr id="2" name="Title 1"/><p:cNvSpPr/><p:nvPr><p:ph type="title"/></p:nvPr></p:nvSpPr>
      <p:txBody><a:p><a:r><a:t>Quarterly Review</a:t></a:r></a:p></p:txBody>
    </p:sp>
    <p:sp>
      <p:nvSpPr><p:cNvPr id="3" name="Content 2"/><p:cNvSpPr/><p:nvPr><p:ph idx="1"/></p:nvPr></p:nvSpPr>
      <p:txBody>
        <a:p><a:r><a:t>Revenue grew 12%</a:t></a:r></a:p>
        <a:p><a:r><a:rPr><a:hlinkClick r:id="rId2"/></a:rPr><a:t>Full report</a:t></a:r></a:p>
      </p:txBody>
    </p:sp>
    <p:sp>
      <p:nvSpPr><p:cNvPr id="4" name="Empty"/><p:cNvSpPr/><p:nvPr/></p:nvSpPr>
      <p:txBody><a:p></a:p></p:txBody>
    </p:sp>
  </p:spTree></p:cSld>
</p:sld>`

const slideOneRels = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
  <Relationship Id="rId2" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/hyperlink" Target="https://example.com/report" TargetMode="External"/>
</Relationships>`

const slideTwo = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<p:sld xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main"
       xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main">
  <p:cSld><p:spTree>
    <p:sp>
      <p:nvSpPr><p:cNvPr id="2" name="Text 1"/><p:cNvSpPr/><p:nvPr/></p:nvSpPr>
      <p:txBody><a:p><a:r><a:t>Next steps</a:t></a:r></a:p></p:txBody>
    </p:sp>
  </p:spTree></p:cSld>
</p:sld>`

const slideThree = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<p:sld xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main"
       xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main">
  <p:cSld><p:spTree>
    <p:graphicFrame>
      <p:nvGraphicFramePr><p:cNvPr id="4" name="Table 1"/><p:cNvGraphicFramePr/><p:nvPr/></p:nvGraphicFramePr>
      <a:graphic><a:graphicData uri="http://schemas.openxmlformats.org/drawingml/2006/table">
        <a:tbl>
          <a:tr h="370840">
            <a:tc><a:txBody><a:p><a:r><a:t>Region</a:t></a:r></a:p></a:txBody></a:tc>
            <a:tc><a:txBody><a:p><a:r><a:t>Sales</a:t></a:r></a:p></a:txBody></a:tc>
          </a:tr>
          <a:tr h="370840">
            <a:tc><a:txBody><a:p/></a:txBody></a:tc>
            <a:tc><a:txBody><a:p/></a:txBody></a:tc>
          </a:tr>
          <a:tr h="370840">
            <a:tc><a:txBody><a:p><a:r><a:t>North</a:t></a:r></a:p></a:txBody></a:tc>
            <a:tc><a:txBody><a:p><a:r><a:t>1200</a:t></a:r></a:p><a:p><a:r><a:t>units</a:t></a:r></a:p></a:txBody></a:tc>
          </a:tr>
        </a:tbl>
      </a:graphicData></a:graphic>
    </p:graphicFrame>
    <p:grpSp>
      <p:sp>
        <p:nvSpPr><p:cNvPr id="5" name="Outer"/><p:cNvSpPr/><p:nvPr/></p:nvSpPr>
        <p:txBody><a:p><a:r><a:t>Outer group text</a:t></a:r></a:p></p:txBody>
      </p:sp>
      <p:grpSp>
        <p:grpSp>
          <p:sp>
            <p:nvSpPr><p:cNvPr id="6" name="Inner"/><p:cNvSpPr/><p:nvPr/></p:nvSpPr>
            <p:txBody><a:p><a:r><a:t>Deeply nested text</a:t></a:r></a:p></p:txBody>
          </p:sp>
        </p:grpSp>
      </p:grpSp>
    </p:grpSp>
  </p:spTree></p:cSld>
</p:sld>`

func TestPDFLoader(t *testing.T) {
	path := createTempPDF(t, "This is a PDF test.", "Second page content.")

	docs, err := NewPDFLoader().Load(path)
	require.NoError(t, err)
	require.Len(t, docs, 2)

	for i, doc := range docs {
		t.Logf("Page %d: %q", i, doc.Content)
	}

	assert.Contains(t, docs[0].Content, "PDF test")
	assert.Contains(t, docs[1].Content, "Second page")
	assert.Equal(t, 0, docs[0].Metadata[MetaPage])
	assert.Equal(t, 1, docs[1].Metadata[MetaPage])
	assert.Equal(t, 2, docs[0].Metadata[MetaTotalPages])
	assert.Equal(t, path, docs[0].Metadata[MetaSource])
}

func TestPDFLoaderEncodings(t *testing.T) {
	t.Run("WinAnsi accented text", func(t *testing.T) {
		path := createTempPDF(t, "Café résumé naïve", "Ærøskøbing über straße")

		docs, err := NewPDFLoader().Load(path)
		require.NoError(t, err)
		require.Len(t, docs, 2)

		assert.True(t, utf8.ValidString(docs[0].Content))
		assert.Contains(t, docs[0].Content, "Café résumé naïve")
		assert.Contains(t, docs[1].Content, "über straße")
	})

	t.Run("CID font with ToUnicode", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "cjk.pdf")
		documenttest.WritePDF(t, path,
			documenttest.ShowText(documenttest.FontCID, documenttest.CIDHex("你好世界")),
		)

		docs, err := NewPDFLoader().Load(path)
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Contains(t, docs[0].Content, "你好世界")
		assert.Equal(t, 0, docs[0].Metadata[MetaPage])
		assert.Equal(t, 1, docs[0].Metadata[MetaTotalPages])
	})

	t.Run("fonts mixed on one page", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "mixed.pdf")
		documenttest.WritePDF(t, path,
			documenttest.ShowText(documenttest.FontWinAnsi, `(Caf\351 )`)+"\n"+
				documenttest.ShowText(documenttest.FontCID, documenttest.CIDHex("你好")),
		)

		docs, err := NewPDFLoader().Load(path)
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Contains(t, docs[0].Content, "Café")
		assert.Contains(t, docs[0].Content, "你好")
	})

	t.Run("undecodable page is skipped when others decode", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "partial.pdf")
		documenttest.WritePDF(t, path,
			documenttest.ShowText(documenttest.FontCIDNoUnicode, "<00010002>"),
			documenttest.ShowText(documenttest.FontWinAnsi, "(second page)"),
		)

		docs, err := NewPDFLoader().Load(path)
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Contains(t, docs[0].Content, "second page")
		assert.Equal(t, 1, docs[0].Metadata[MetaPage])
		assert.Equal(t, 2, docs[0].Metadata[MetaTotalPages])
	})

	t.Run("no page decodes", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "scrambled.pdf")
		documenttest.WritePDF(t, path,
			documenttest.ShowText(documenttest.FontCIDNoUnicode, "<00010002>"),
			documenttest.ShowText(documenttest.FontCIDNoUnicode, "<00030004>"),
		)

		docs, err := NewPDFLoader().Load(path)
		assert.ErrorIs(t, err, ErrUndecodableText)
		assert.Empty(t, docs)
	})

	t.Run("pages without text", func(t *testing.T) {
		path := createTempPDF(t, "", "")

		docs, err := NewPDFLoader().Load(path)
		require.NoError(t, err)
		assert.Empty(t, docs)
	})
}

func TestPDFLoaderInvalidFile(t *testing.T) {
	path := createTempFile(t, "broken.pdf", "not a pdf")
	_, err := NewPDFLoader().Load(path)
	assert.Error(t, err)
}

func TestWordLoader(t *testing.T) {
	t.Run("docx", func(t *testing.T) {
		path := createZip(t, "plan.docx", map[string]string{"word/document.xml": docxBody})

		docs, err := NewWordLoader().Load(path)
		require.NoError(t, err)
		require.Len(t, docs, 1)

		assert.Equal(t, "Project plan\n\nPhase one starts in March.\n\nBudget cell", docs[0].Content)
		assert.Equal(t, map[string]interface{}{MetaSource: path}, docs[0].Metadata)
	})

	t.Run("legacy doc", func(t *testing.T) {
		path := createTempFile(t, "old.doc", "binary")
		_, err := NewWordLoader().Load(path)
		assert.True(t, errors.Is(err, ErrLegacyFormat))
	})

	t.Run("missing document part", func(t *testing.T) {
		path := createZip(t, "empty.docx", map[string]string{"docProps/core.xml": "<coreProperties/>"})
		_, err := NewWordLoader().Load(path)
		assert.Error(t, err)
	})
}

func TestExcelLoader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs_2025.xlsx")

	f := excelize.NewFile()
	require.NoError(t, f.SetCellValue("Sheet1", "A1", "Name"))
	require.NoError(t, f.SetCellValue("Sheet1", "B1", "Role"))
	require.NoError(t, f.SetCellValue("Sheet1", "A2", "Alice"))
	require.NoError(t, f.SetCellValue("Sheet1", "B2", "Engineer"))
	require.NoError(t, f.SetCellValue("Sheet1", "A4", "Bob"))
	_, err := f.NewSheet("Archive")
	require.NoError(t, err)
	require.NoError(t, f.SetCellValue("Archive", "A1", "Carol"))
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	docs, err := NewExcelLoader().Load(path)
	require.NoError(t, err)
	require.Len(t, docs, 4)

	alice := docs[1]
	assert.Equal(t, "Alice Engineer", alice.Content)
	assert.Equal(t, path, alice.Metadata[MetaSource])
	assert.Equal(t, "jobs_2025.xlsx", alice.Metadata[MetaFilename])
	assert.Equal(t, MimeXLSX, alice.Metadata[MetaFiletype])
	assert.Equal(t, "Sheet1", alice.Metadata[MetaPageName])
	assert.Equal(t, 1, alice.Metadata[MetaPageNumber])
	assert.Equal(t, 2, alice.Metadata[MetaRowNumber])
	assert.Equal(t, CategoryTableRow, alice.Metadata[MetaCategory])
	assert.Equal(t, []string{"Name", "Role"}, alice.Metadata[MetaColumns])

	carol := docs[3]
	assert.Equal(t, "Carol", carol.Content)
	assert.Equal(t, "Archive", carol.Metadata[MetaPageName])
	assert.Equal(t, 2, carol.Metadata[MetaPageNumber])
}

func TestPowerPointLoader(t *testing.T) {
	t.Run("pptx", func(t *testing.T) {
		path := createZip(t, "jobs_presentation.pptx", map[string]string{
			"ppt/slides/slide1.xml":            slideOne,
			"ppt/slides/_rels/slide1.xml.rels": slideOneRels,
			"ppt/slides/slide2.xml":            slideTwo,
		})

		docs, err := NewPowerPointLoader().Load(path)
		require.NoError(t, err)
		require.Len(t, docs, 3)

		assert.Equal(t, "Quarterly Review", docs[0].Content)
		assert.Equal(t, CategoryTitle, docs[0].Metadata[MetaCategory])
		assert.Equal(t, 1, docs[0].Metadata[MetaPageNumber])
		assert.NotContains(t, docs[0].Metadata, MetaLinks)

		assert.Equal(t, "Revenue grew 12%\nFull report", docs[1].Content)
		assert.Equal(t, CategoryNarrativeText, docs[1].Metadata[MetaCategory])
		links, ok := docs[1].Metadata[MetaLinks].([]map[string]interface{})
		require.True(t, ok)
		require.Len(t, links, 1)
		assert.Equal(t, "https://example.com/report", links[0]["url"])

		assert.Equal(t, "Next steps", docs[2].Content)
		assert.Equal(t, 2, docs[2].Metadata[MetaPageNumber])
		assert.Equal(t, MimePPTX, docs[2].Metadata[MetaFiletype])
	})

	t.Run("tables and nested groups", func(t *testing.T) {
		path := createZip(t, "sales.pptx", map[string]string{
			"ppt/slides/slide1.xml": slideThree,
		})

		docs, err := NewPowerPointLoader().Load(path)
		require.NoError(t, err)
		require.Len(t, docs, 3)

		assert.Equal(t, "Region\tSales\nNorth\t1200 units", docs[0].Content)
		assert.Equal(t, CategoryTable, docs[0].Metadata[MetaCategory])
		assert.Equal(t, 1, docs[0].Metadata[MetaPageNumber])

		assert.Equal(t, "Outer group text", docs[1].Content)
		assert.Equal(t, "Deeply nested text", docs[2].Content)
		assert.Equal(t, CategoryNarrativeText, docs[2].Metadata[MetaCategory])
	})

	t.Run("legacy ppt", func(t *testing.T) {
		path := createTempFile(t, "old.ppt", "binary")
		_, err := NewPowerPointLoader().Load(path)
		assert.True(t, errors.Is(err, ErrLegacyFormat))
	})
}

func TestTextLoaders(t *testing.T) {
	t.Run("plain text", func(t *testing.T) {
		path := createTempFile(t, "notes.txt", "Hello, this is a plain text file.\r\nSecond line.")
		docs, err := NewPlainTextLoader().Load(path)
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, "Hello, this is a plain text file.\nSecond line.", docs[0].Content)
	})

	t.Run("blank text", func(t *testing.T) {
		path := createTempFile(t, "blank.txt", "  \n ")
		docs, err := NewPlainTextLoader().Load(path)
		require.NoError(t, err)
		assert.Empty(t, docs)
	})

	t.Run("markdown", func(t *testing.T) {
		path := createTempFile(t, "readme.md", "# Title\n\nThis is a **markdown** file.\n\n- Item 1\n- Item 2")
		docs, err := NewMarkdownLoader().Load(path)
		require.NoError(t, err)
		require.Len(t, docs, 1)

		t.Logf("Markdown text: %q", docs[0].Content)
		assert.Contains(t, docs[0].Content, "markdown file")
		assert.Contains(t, docs[0].Content, "Item 1")
		assert.NotContains(t, docs[0].Content, "<strong>")
	})
}
