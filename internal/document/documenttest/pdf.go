// Package documenttest 提供测试用的文档构造工具
package documenttest

import (
	"bytes"
	"fmt"
	"os"
	"testing"
)

// 所有页面共享的字体资源
const (
	// FontWinAnsi WinAnsi编码的Helvetica，字符串按Windows-1252编码
	FontWinAnsi = "/F1"
	// FontCID Identity-H编码的CID字体，带ToUnicode映射
	FontCID = "/F2"
	// FontCIDNoUnicode 与FontCID相同的字形，但没有ToUnicode映射，文本无法还原
	FontCIDNoUnicode = "/F3"
)

// CIDText FontCID字体下可以显示的字符及其编码
var CIDText = map[rune]string{
	'你': "0001",
	'好': "0002",
	'世': "0003",
	'界': "0004",
}

const toUnicodeCMap = `/CIDInit /ProcSet findresource begin
12 dict begin
begincmap
/CIDSystemInfo << /Registry (Adobe) /Ordering (UCS) /Supplement 0 >> def
/CMapName /Adobe-Identity-UCS def
/CMapType 2 def
1 begincodespacerange
<0000> <FFFF>
endcodespacerange
4 beginbfchar
<0001> <4F60>
<0002> <597D>
<0003> <4E16>
<0004> <754C>
endbfchar
endcmap
CMapName currentdict /CMap defineresource pop
end
end`

// CIDHex 将字符串编码为FontCID字体的十六进制字符串操作数
func CIDHex(s string) string {
	var b bytes.Buffer
	b.WriteByte('<')
	for _, r := range s {
		code, ok := CIDText[r]
		if !ok {
			panic(fmt.Sprintf("documenttest: no CID code for %q", r))
		}
		b.WriteString(code)
	}
	b.WriteByte('>')
	return b.String()
}

// ShowText 生成在一行中用指定字体显示字符串操作数的内容流
func ShowText(font, operand string) string {
	return fmt.Sprintf("BT %s 12 Tf 72 720 Td %s Tj ET", font, operand)
}

// WritePDF 写入一个未压缩的PDF，每个参数是一页的内容流
func WritePDF(t testing.TB, path string, pages ...string) {
	t.Helper()

	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"", // 页面树，最后填充
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
		"<< /Type /Font /Subtype /Type0 /BaseFont /SimSun /Encoding /Identity-H /DescendantFonts [6 0 R] /ToUnicode 5 0 R >>",
		stream(toUnicodeCMap),
		"<< /Type /Font /Subtype /CIDFontType2 /BaseFont /SimSun " +
			"/CIDSystemInfo << /Registry (Adobe) /Ordering (Identity) /Supplement 0 >> " +
			"/FontDescriptor 7 0 R /DW 1000 >>",
		"<< /Type /FontDescriptor /FontName /SimSun /Flags 4 /FontBBox [0 -200 1000 900] " +
			"/ItalicAngle 0 /Ascent 900 /Descent -200 /CapHeight 700 /StemV 80 >>",
		"<< /Type /Font /Subtype /Type0 /BaseFont /SimSun /Encoding /Identity-H /DescendantFonts [6 0 R] >>",
	}

	var kids bytes.Buffer
	for _, content := range pages {
		pageNum := len(objects) + 1
		fmt.Fprintf(&kids, "%d 0 R ", pageNum)
		objects = append(objects,
			fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] "+
				"/Resources << /Font << /F1 3 0 R /F2 4 0 R /F3 8 0 R >> >> /Contents %d 0 R >>", pageNum+1),
			stream(content),
		)
	}
	objects[1] = fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", bytes.TrimSpace(kids.Bytes()), len(pages))

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)

	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatalf("write pdf: %v", err)
	}
}

func stream(content string) string {
	return fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content)
}
