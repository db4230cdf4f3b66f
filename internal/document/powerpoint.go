package document

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// PowerPointLoader 演示文稿加载器（元素模式）
// 每个包含文本的形状生成一个Document
type PowerPointLoader struct{}

// NewPowerPointLoader 创建一个新的演示文稿加载器
func NewPowerPointLoader() *PowerPointLoader {
	return &PowerPointLoader{}
}

var slideFilePattern = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

type pptxSlide struct {
	Tree pptxShapeTree `xml:"cSld>spTree"`
}

// pptxShapeTree 形状树，组合形状可以任意嵌套
type pptxShapeTree struct {
	Shapes []pptxShape        `xml:"sp"`
	Frames []pptxGraphicFrame `xml:"graphicFrame"`
	Groups []pptxShapeTree    `xml:"grpSp"`
}

type pptxShape struct {
	Placeholder struct {
		Type string `xml:"type,attr"`
	} `xml:"nvSpPr>nvPr>ph"`
	Paragraphs []pptxParagraph `xml:"txBody>p"`
}

// pptxGraphicFrame 图形框，只读取其中的表格
type pptxGraphicFrame struct {
	Rows []struct {
		Cells []struct {
			Paragraphs []pptxParagraph `xml:"txBody>p"`
		} `xml:"tc"`
	} `xml:"graphic>graphicData>tbl>tr"`
}

type pptxParagraph struct {
	Runs []pptxRun `xml:"r"`
}

type pptxRun struct {
	Text string `xml:"t"`
	Link struct {
		ID string `xml:"id,attr"`
	} `xml:"rPr>hlinkClick"`
}

type pptxRelationships struct {
	Items []struct {
		ID     string `xml:"Id,attr"`
		Target string `xml:"Target,attr"`
	} `xml:"Relationship"`
}

// Load 加载演示文稿
func (l *PowerPointLoader) Load(p string) ([]Document, error) {
	if strings.ToLower(filepath.Ext(p)) == ".ppt" {
		return nil, fmt.Errorf("%s: %w", filepath.Base(p), ErrLegacyFormat)
	}

	zr, err := zip.OpenReader(p)
	if err != nil {
		return nil, fmt.Errorf("failed to open pptx: %w", err)
	}
	defer zr.Close()

	type slideFile struct {
		number int
		name   string
	}
	var slides []slideFile
	for _, f := range zr.File {
		m := slideFilePattern.FindStringSubmatch(f.Name)
		if m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		slides = append(slides, slideFile{number: n, name: f.Name})
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].number < slides[j].number })

	var docs []Document
	for _, s := range slides {
		content, err := readZipEntry(&zr.Reader, s.name)
		if err != nil {
			return nil, err
		}

		var slide pptxSlide
		if err := xml.Unmarshal(content, &slide); err != nil {
			return nil, fmt.Errorf("failed to parse slide %d: %w", s.number, err)
		}

		rels := slideRelationships(&zr.Reader, s.name)

		for _, el := range slideElements(slide.Tree, rels) {
			meta := baseMetadata(p, MimePPTX)
			meta[MetaPageNumber] = s.number
			meta[MetaCategory] = el.category
			if len(el.links) > 0 {
				meta[MetaLinks] = el.links
			}

			docs = append(docs, Document{Content: el.text, Metadata: meta})
		}
	}

	return docs, nil
}

type slideElement struct {
	text     string
	category string
	links    []map[string]interface{}
}

// slideElements 依次收集形状、表格和组合内的元素，跳过没有文本的元素
func slideElements(tree pptxShapeTree, rels map[string]string) []slideElement {
	var out []slideElement
	for _, shape := range tree.Shapes {
		text, links := paragraphText(shape.Paragraphs, rels)
		if text != "" {
			out = append(out, slideElement{text: text, category: shapeCategory(shape), links: links})
		}
	}
	for _, frame := range tree.Frames {
		if el, ok := tableElement(frame, rels); ok {
			out = append(out, el)
		}
	}
	for _, group := range tree.Groups {
		out = append(out, slideElements(group, rels)...)
	}
	return out
}

// tableElement 表格每行一行文本，单元格之间用制表符分隔
func tableElement(frame pptxGraphicFrame, rels map[string]string) (slideElement, bool) {
	el := slideElement{category: CategoryTable}
	var rows []string
	for _, row := range frame.Rows {
		cells := make([]string, 0, len(row.Cells))
		empty := true
		for _, cell := range row.Cells {
			text, links := paragraphText(cell.Paragraphs, rels)
			text = strings.ReplaceAll(text, "\n", " ")
			if text != "" {
				empty = false
			}
			cells = append(cells, text)
			el.links = append(el.links, links...)
		}
		if !empty {
			rows = append(rows, strings.Join(cells, "\t"))
		}
	}
	el.text = strings.Join(rows, "\n")
	return el, el.text != ""
}

// paragraphText 拼接段落文本，同时收集超链接
func paragraphText(paragraphs []pptxParagraph, rels map[string]string) (string, []map[string]interface{}) {
	var (
		lines []string
		links []map[string]interface{}
	)
	for _, para := range paragraphs {
		var sb strings.Builder
		for _, r := range para.Runs {
			sb.WriteString(r.Text)
			if r.Link.ID == "" {
				continue
			}
			if url, ok := rels[r.Link.ID]; ok {
				links = append(links, map[string]interface{}{"text": r.Text, "url": url})
			}
		}
		if line := strings.TrimSpace(sb.String()); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n"), links
}

// shapeCategory 标题占位符归为Title，其余为NarrativeText
func shapeCategory(shape pptxShape) string {
	switch shape.Placeholder.Type {
	case "title", "ctrTitle":
		return CategoryTitle
	default:
		return CategoryNarrativeText
	}
}

// slideRelationships 读取幻灯片的关系文件，缺失时返回空映射
func slideRelationships(reader *zip.Reader, slideName string) map[string]string {
	relsName := path.Join(path.Dir(slideName), "_rels", path.Base(slideName)+".rels")
	rels := make(map[string]string)

	content, err := readZipEntry(reader, relsName)
	if err != nil {
		return rels
	}

	var parsed pptxRelationships
	if err := xml.Unmarshal(content, &parsed); err != nil {
		return rels
	}
	for _, r := range parsed.Items {
		rels[r.ID] = r.Target
	}
	return rels
}
