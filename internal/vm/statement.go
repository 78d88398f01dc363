package vm

import (
	"strings"
)

// Statement is one directive of a prompt script, immutable once parsed.
type Statement struct {
	Seq     int
	Keyword string
	Value   string
}

var keywords = map[string]bool{
	".#":         true,
	".assistant": true,
	".clear":     true,
	".cmd":       true,
	".debug":     true,
	".exec":      true,
	".exit":      true,
	".image":     true,
	".include":   true,
	".llm":       true,
	".system":    true,
	".text":      true,
	".user":      true,
}

// Parse lexes a prompt script into statements. Lines that do not start
// with a dot, or that start with an unrecognized dot-word, are literal
// text. Consecutive text lines fold into the preceding text-bearing
// statement. A script that does not end with .exec gets one appended, so
// plain prose files execute as a single turn.
func Parse(src string) []Statement {
	var stmts []Statement
	lastLine := ""

	for _, raw := range strings.Split(src, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		lastLine = line

		keyword, value := ".text", line
		if line[0] == '.' {
			if i := strings.IndexByte(line, ' '); i >= 0 {
				keyword, value = line[:i], line[i+1:]
			} else {
				keyword, value = line, ""
			}
			if !keywords[keyword] {
				keyword, value = ".text", line
			}
		}

		if keyword == ".text" && len(stmts) > 0 {
			last := &stmts[len(stmts)-1]
			switch last.Keyword {
			case ".assistant", ".system", ".text", ".user":
				last.Value = strings.TrimSpace(last.Value + "\n" + value)
				continue
			}
		}

		stmts = append(stmts, Statement{Seq: len(stmts), Keyword: keyword, Value: value})
	}

	if len(stmts) == 0 {
		return nil
	}
	if !strings.HasPrefix(lastLine, ".exec") {
		stmts = append(stmts, Statement{Seq: len(stmts), Keyword: ".exec"})
	}
	return stmts
}
