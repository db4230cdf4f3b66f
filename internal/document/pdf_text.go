package document

// showsText 判断页面内容流是否用 Tj、TJ、' 或 " 显示了非空字符串
// 只扫描操作符和字符串操作数，不做任何解码
func showsText(content []byte) bool {
	operand := false
	n := len(content)
	for i := 0; i < n; {
		c := content[i]
		switch {
		case c == '%':
			for i < n && content[i] != '\n' && content[i] != '\r' {
				i++
			}
		case c == '(':
			start := i
			i = skipLiteralString(content, i)
			if i-start > 2 {
				operand = true
			}
		case c == '<' && i+1 < n && content[i+1] == '<':
			i += 2
		case c == '>' && i+1 < n && content[i+1] == '>':
			i += 2
		case c == '<':
			start := i
			i = skipHexString(content, i)
			if i-start > 2 {
				operand = true
			}
		case isPDFWhitespace(c) || isPDFDelimiter(c):
			i++
		default:
			start := i
			for i < n && !isPDFWhitespace(content[i]) && !isPDFDelimiter(content[i]) {
				i++
			}
			switch string(content[start:i]) {
			case "Tj", "TJ", "'", "\"":
				if operand {
					return true
				}
			case "BT", "ET":
				operand = false
			}
		}
	}
	return false
}

// skipLiteralString 跳过 (...) 形式的字符串，处理嵌套括号和转义，返回结束后的位置
func skipLiteralString(content []byte, start int) int {
	depth := 0
	for i := start; i < len(content); i++ {
		switch content[i] {
		case '\\':
			i++
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return len(content)
}

// skipHexString 跳过 <...> 形式的十六进制字符串，返回结束后的位置
func skipHexString(content []byte, start int) int {
	for i := start + 1; i < len(content); i++ {
		if content[i] == '>' {
			return i + 1
		}
	}
	return len(content)
}

func isPDFWhitespace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\r' || c == '\t' || c == '\f' || c == 0
}

func isPDFDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}
