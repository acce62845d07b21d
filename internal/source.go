package internal

import (
	"os"
	"strings"
)

// SourceCode stores the content of a program file.
type SourceCode struct {
	Lines []string
}

// ReadSourceCode reads the file at filename line by line.
func ReadSourceCode(filename string) (*SourceCode, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	lines := strings.Split(string(content), "\n")
	return &SourceCode{Lines: lines}, nil
}
