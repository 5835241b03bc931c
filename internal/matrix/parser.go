// Package matrix reads gene × case profile data files (cBioPortal
// "data_*.txt" matrices) and imports them into an alteration store.
package matrix

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Standard matrix column names
const (
	ColHugoSymbol   = "Hugo_Symbol"
	ColEntrezGeneID = "Entrez_Gene_Id"
)

// annotationColumns are header columns that describe the gene rather than
// hold a case value.
var annotationColumns = map[string]bool{
	ColHugoSymbol:           true,
	ColEntrezGeneID:         true,
	"Cytoband":              true,
	"Locus ID":              true,
	"Composite.Element.REF": true,
}

// Record is one gene row of a matrix file.
type Record struct {
	HugoSymbol   string
	EntrezGeneID int64 // 0 when the file has no Entrez column or the cell is blank
	Values       []string
	Line         int
}

// Parser reads gene rows from a profile matrix file.
type Parser struct {
	reader     *bufio.Reader
	file       *os.File
	gzipReader *gzip.Reader
	lineNumber int
	numFields  int
	hugoCol    int
	entrezCol  int
	caseCols   []int
	cases      []string
}

// NewParser creates a parser for the given file. Gzipped files are detected
// by their magic bytes. Use "-" for stdin.
func NewParser(path string) (*Parser, error) {
	if path == "-" {
		return NewParserFromReader(os.Stdin)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open matrix file: %w", err)
	}

	p := &Parser{file: file}

	buf := make([]byte, 2)
	if _, err := io.ReadFull(file, buf); err != nil {
		file.Close()
		return nil, fmt.Errorf("read matrix header: %w", err)
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		file.Close()
		return nil, fmt.Errorf("seek matrix file: %w", err)
	}

	// gzip magic number (0x1f, 0x8b)
	if buf[0] == 0x1f && buf[1] == 0x8b {
		p.gzipReader, err = gzip.NewReader(file)
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("create gzip reader: %w", err)
		}
		p.reader = bufio.NewReader(p.gzipReader)
	} else {
		p.reader = bufio.NewReader(file)
	}

	if err := p.parseHeader(); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

// NewParserFromReader creates a parser from an io.Reader.
func NewParserFromReader(r io.Reader) (*Parser, error) {
	p := &Parser{reader: bufio.NewReader(r)}
	if err := p.parseHeader(); err != nil {
		return nil, err
	}
	return p, nil
}

// readLine returns the next non-empty, non-comment line. It returns io.EOF
// when the input is exhausted.
func (p *Parser) readLine() (string, error) {
	for {
		line, err := p.reader.ReadString('\n')
		if err != nil && (err != io.EOF || line == "") {
			return "", err
		}
		p.lineNumber++

		line = strings.TrimRight(line, "\r\n")
		if line == "" || strings.HasPrefix(line, "#") {
			if err == io.EOF {
				return "", io.EOF
			}
			continue
		}
		return line, nil
	}
}

func (p *Parser) parseHeader() error {
	line, err := p.readLine()
	if err == io.EOF {
		return &ParseError{Line: p.lineNumber, Message: "no header line found"}
	}
	if err != nil {
		return fmt.Errorf("read header: %w", err)
	}

	columns := strings.Split(line, "\t")
	p.numFields = len(columns)
	p.hugoCol, p.entrezCol = -1, -1

	seen := make(map[string]bool)
	for i, col := range columns {
		col = strings.TrimSpace(col)
		switch {
		case col == ColHugoSymbol:
			p.hugoCol = i
		case col == ColEntrezGeneID:
			p.entrezCol = i
		case annotationColumns[col]:
		default:
			if col == "" {
				return &ParseError{Line: p.lineNumber, Message: fmt.Sprintf("empty case id in column %d", i+1)}
			}
			if seen[col] {
				return &ParseError{Line: p.lineNumber, Message: fmt.Sprintf("case %q listed twice", col)}
			}
			seen[col] = true
			p.caseCols = append(p.caseCols, i)
			p.cases = append(p.cases, col)
		}
	}

	if p.hugoCol == -1 && p.entrezCol == -1 {
		return &ParseError{
			Line:    p.lineNumber,
			Message: "required column 'Hugo_Symbol' or 'Entrez_Gene_Id' not found in header",
		}
	}
	if len(p.cases) == 0 {
		return &ParseError{Line: p.lineNumber, Message: "no case columns in header"}
	}
	return nil
}

// Next reads the next gene row. Returns nil, nil at end of input.
func (p *Parser) Next() (*Record, error) {
	line, err := p.readLine()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read matrix line: %w", err)
	}

	fields := strings.Split(line, "\t")
	if len(fields) != p.numFields {
		return nil, &ParseError{
			Line:    p.lineNumber,
			Message: fmt.Sprintf("expected %d columns, found %d", p.numFields, len(fields)),
		}
	}

	rec := &Record{Line: p.lineNumber, Values: make([]string, len(p.caseCols))}
	if p.hugoCol >= 0 {
		rec.HugoSymbol = strings.TrimSpace(fields[p.hugoCol])
	}
	if p.entrezCol >= 0 {
		if s := strings.TrimSpace(fields[p.entrezCol]); s != "" && s != "NA" {
			id, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return nil, &ParseError{
					Line:    p.lineNumber,
					Message: fmt.Sprintf("invalid Entrez gene id: %s", s),
				}
			}
			rec.EntrezGeneID = id
		}
	}
	for i, col := range p.caseCols {
		rec.Values[i] = fields[col]
	}
	return rec, nil
}

// Cases returns the case ids of the header in column order.
func (p *Parser) Cases() []string {
	return append([]string(nil), p.cases...)
}

// Close closes the parser and underlying file.
func (p *Parser) Close() error {
	if p.gzipReader != nil {
		p.gzipReader.Close()
	}
	if p.file != nil {
		return p.file.Close()
	}
	return nil
}

// ParseError represents an error during matrix parsing with line context.
type ParseError struct {
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("matrix parse error at line %d: %s", e.Line, e.Message)
}
