package source

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// MarkerLabel returns the marker label of the k-th insertion point.
func MarkerLabel(k int) string {
	return "L" + strconv.Itoa(k)
}

// HasMarker reports whether a source line carries marker label. Whitespace
// is ignored. The label must not be preceded by an identifier character or
// followed by a digit, so L1 does not match L10 or VAL1.
func HasMarker(line, label string) bool {
	stripped := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\r', '\n':
			return -1
		}
		return r
	}, line)
	for from := 0; ; {
		i := strings.Index(stripped[from:], label)
		if i < 0 {
			return false
		}
		i += from
		end := i + len(label)
		before := i == 0 || !isIdent(stripped[i-1])
		after := end == len(stripped) || !isDigit(stripped[end])
		if before && after {
			return true
		}
		from = i + 1
	}
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isIdent(c byte) bool {
	return isDigit(c) || c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// Apply copies src to dst and inserts directives[Lk] on its own line right
// after the line holding marker Lk. Markers are consumed in order, so L2 is
// only looked for after L1 has been seen. Every input byte is preserved.
// It returns the number of markers seen.
func Apply(dst io.Writer, src io.Reader, directives map[string]string) (int, error) {
	br := bufio.NewReader(src)
	bw := bufio.NewWriter(dst)
	k := 1
	for {
		line, err := br.ReadString('\n')
		if len(line) > 0 {
			if _, werr := bw.WriteString(line); werr != nil {
				return k - 1, werr
			}
			label := MarkerLabel(k)
			if HasMarker(line, label) {
				if text := directives[label]; text != "" {
					eol := "\n"
					if strings.HasSuffix(line, "\r\n") {
						eol = "\r\n"
					}
					if !strings.HasSuffix(line, "\n") {
						text = eol + text
					}
					if _, werr := bw.WriteString(text + eol); werr != nil {
						return k - 1, werr
					}
				}
				k++
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return k - 1, err
		}
	}
	return k - 1, bw.Flush()
}

// ApplyFile is Apply over files.
func ApplyFile(dstPath, srcPath string, directives map[string]string) (int, error) {
	in, err := os.Open(srcPath)
	if err != nil {
		return 0, fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dstPath)
	if err != nil {
		return 0, fmt.Errorf("create output: %w", err)
	}
	n, err := Apply(out, in, directives)
	if err != nil {
		out.Close()
		return n, fmt.Errorf("apply directives: %w", err)
	}
	return n, out.Close()
}
