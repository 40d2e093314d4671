package structure

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

const positionTolerance = 1e-3

// ReadCIF parses the first data block of a CIF document. Symmetry operations
// listed under _symmetry_equiv_pos_as_xyz or _space_group_symop_operation_xyz
// are applied to the asymmetric unit; images that coincide are merged.
func ReadCIF(r io.Reader) (*Structure, error) {
	tokens, err := tokenizeCIF(r)
	if err != nil {
		return nil, err
	}
	block, err := parseCIFBlock(tokens)
	if err != nil {
		return nil, err
	}
	return block.structure()
}

// ParseCIF is ReadCIF over a string.
func ParseCIF(text string) (*Structure, error) {
	return ReadCIF(strings.NewReader(text))
}

type cifToken struct {
	text   string
	quoted bool
}

func (t cifToken) keyword(prefix string) bool {
	return !t.quoted && strings.HasPrefix(strings.ToLower(t.text), prefix)
}

func (t cifToken) isTag() bool { return !t.quoted && strings.HasPrefix(t.text, "_") }

func tokenizeCIF(r io.Reader) ([]cifToken, error) {
	var tokens []cifToken
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	var textField *strings.Builder
	for sc.Scan() {
		line := sc.Text()
		if textField != nil {
			if strings.HasPrefix(line, ";") {
				tokens = append(tokens, cifToken{text: strings.TrimSpace(textField.String()), quoted: true})
				textField = nil
				line = line[1:]
			} else {
				textField.WriteString(line)
				textField.WriteByte('\n')
				continue
			}
		} else if strings.HasPrefix(line, ";") {
			textField = &strings.Builder{}
			textField.WriteString(line[1:])
			textField.WriteByte('\n')
			continue
		}
		lineTokens, err := tokenizeCIFLine(line)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, lineTokens...)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read cif: %w", err)
	}
	if textField != nil {
		return nil, errors.New("unterminated text field in cif")
	}
	return tokens, nil
}

func tokenizeCIFLine(line string) ([]cifToken, error) {
	var out []cifToken
	i := 0
	for i < len(line) {
		c := line[i]
		switch {
		case c == ' ' || c == '\t' || c == '\r':
			i++
		case c == '#':
			return out, nil
		case c == '\'' || c == '"':
			end := -1
			for j := i + 1; j < len(line); j++ {
				if line[j] == c && (j+1 == len(line) || line[j+1] == ' ' || line[j+1] == '\t') {
					end = j
					break
				}
			}
			if end < 0 {
				return nil, fmt.Errorf("unterminated quoted string in %q", line)
			}
			out = append(out, cifToken{text: line[i+1 : end], quoted: true})
			i = end + 1
		default:
			j := i
			for j < len(line) && line[j] != ' ' && line[j] != '\t' {
				j++
			}
			out = append(out, cifToken{text: line[i:j]})
			i = j
		}
	}
	return out, nil
}

type cifLoop struct {
	tags []string
	rows [][]string
}

func (l cifLoop) column(tag string) int {
	for i, t := range l.tags {
		if t == tag {
			return i
		}
	}
	return -1
}

type cifBlock struct {
	name  string
	items map[string]string
	loops []cifLoop
}

func parseCIFBlock(tokens []cifToken) (*cifBlock, error) {
	var block *cifBlock
	i := 0
	for i < len(tokens) {
		tok := tokens[i]
		switch {
		case tok.keyword("data_"):
			if block != nil {
				return block, nil
			}
			block = &cifBlock{name: tok.text[len("data_"):], items: make(map[string]string)}
			i++
		case block == nil:
			return nil, errors.New("cif content before first data block")
		case tok.keyword("loop_"):
			i++
			var loop cifLoop
			for i < len(tokens) && tokens[i].isTag() {
				loop.tags = append(loop.tags, strings.ToLower(tokens[i].text))
				i++
			}
			if len(loop.tags) == 0 {
				return nil, errors.New("loop_ without tags")
			}
			var values []string
			for i < len(tokens) && !tokens[i].isTag() && !tokens[i].keyword("loop_") && !tokens[i].keyword("data_") && !tokens[i].keyword("save_") {
				values = append(values, tokens[i].text)
				i++
			}
			if len(values)%len(loop.tags) != 0 {
				return nil, fmt.Errorf("loop with %d tags has %d values", len(loop.tags), len(values))
			}
			for start := 0; start < len(values); start += len(loop.tags) {
				loop.rows = append(loop.rows, values[start:start+len(loop.tags)])
			}
			block.loops = append(block.loops, loop)
		case tok.isTag():
			if i+1 >= len(tokens) {
				return nil, fmt.Errorf("tag %s has no value", tok.text)
			}
			block.items[strings.ToLower(tok.text)] = tokens[i+1].text
			i += 2
		default:
			// save frames and stray values carry nothing the structure needs
			i++
		}
	}
	if block == nil {
		return nil, errors.New("no data block in cif")
	}
	return block, nil
}

func (b *cifBlock) loopWith(tag string) (cifLoop, bool) {
	for _, l := range b.loops {
		if l.column(tag) >= 0 {
			return l, true
		}
	}
	return cifLoop{}, false
}

func (b *cifBlock) number(tag string) (float64, error) {
	raw, ok := b.items[tag]
	if !ok {
		return 0, fmt.Errorf("missing %s", tag)
	}
	v, err := parseCIFNumber(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", tag, err)
	}
	return v, nil
}

func (b *cifBlock) structure() (*Structure, error) {
	var cell [6]float64
	for i, tag := range []string{"_cell_length_a", "_cell_length_b", "_cell_length_c", "_cell_angle_alpha", "_cell_angle_beta", "_cell_angle_gamma"} {
		v, err := b.number(tag)
		if err != nil {
			return nil, err
		}
		cell[i] = v
	}
	lattice, err := FromParameters(cell[0], cell[1], cell[2], cell[3], cell[4], cell[5])
	if err != nil {
		return nil, err
	}

	atoms, ok := b.loopWith("_atom_site_fract_x")
	if !ok {
		return nil, errors.New("cif has no _atom_site_fract loop")
	}
	symbolCol := atoms.column("_atom_site_type_symbol")
	labelCol := atoms.column("_atom_site_label")
	if symbolCol < 0 {
		symbolCol = labelCol
	}
	if symbolCol < 0 {
		return nil, errors.New("cif atom loop has neither type symbol nor label")
	}
	fracCols := [3]int{atoms.column("_atom_site_fract_x"), atoms.column("_atom_site_fract_y"), atoms.column("_atom_site_fract_z")}
	for _, c := range fracCols {
		if c < 0 {
			return nil, errors.New("cif atom loop is missing a fractional coordinate column")
		}
	}
	occCol := atoms.column("_atom_site_occupancy")

	ops, err := b.symmetryOperations()
	if err != nil {
		return nil, err
	}

	var sites []Site
	for rowIdx, row := range atoms.rows {
		el, err := ParseElement(row[symbolCol])
		if err != nil {
			return nil, fmt.Errorf("atom row %d: %w", rowIdx, err)
		}
		var frac [3]float64
		for k, c := range fracCols {
			v, err := parseCIFNumber(row[c])
			if err != nil {
				return nil, fmt.Errorf("atom row %d: %w", rowIdx, err)
			}
			frac[k] = v
		}
		occ := 1.0
		if occCol >= 0 {
			if v, err := parseCIFNumber(row[occCol]); err == nil {
				occ = v
			}
		}
		label := ""
		if labelCol >= 0 {
			label = row[labelCol]
		}
		for _, pos := range orbit(frac, ops) {
			sites = mergeSpecie(sites, pos, Specie{Element: el.Symbol, Occupancy: occ}, label)
		}
	}
	return New(lattice, sites)
}

func (b *cifBlock) symmetryOperations() ([]symOp, error) {
	for _, tag := range []string{"_symmetry_equiv_pos_as_xyz", "_space_group_symop_operation_xyz"} {
		loop, ok := b.loopWith(tag)
		if !ok {
			continue
		}
		col := loop.column(tag)
		ops := make([]symOp, 0, len(loop.rows))
		for _, row := range loop.rows {
			op, err := parseSymOp(row[col])
			if err != nil {
				return nil, err
			}
			ops = append(ops, op)
		}
		return ops, nil
	}
	return []symOp{identityOp()}, nil
}

func mergeSpecie(sites []Site, pos [3]float64, sp Specie, label string) []Site {
	for i := range sites {
		if !samePosition(sites[i].Frac, pos) {
			continue
		}
		for _, existing := range sites[i].Species {
			if existing.Element == sp.Element {
				return sites
			}
		}
		sites[i].Species = append(sites[i].Species, sp)
		return sites
	}
	return append(sites, Site{Species: []Specie{sp}, Frac: pos, Label: label})
}

// parseCIFNumber accepts standard-uncertainty suffixes such as "1.234(5)".
func parseCIFNumber(raw string) (float64, error) {
	if i := strings.IndexByte(raw, '('); i >= 0 {
		raw = raw[:i]
	}
	if raw == "?" || raw == "." {
		return 0, fmt.Errorf("value %q is unknown", raw)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("parse number %q: %w", raw, err)
	}
	return v, nil
}

type symOp struct {
	rot   [3][3]float64
	trans [3]float64
}

func identityOp() symOp {
	return symOp{rot: [3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}}
}

func (op symOp) apply(frac [3]float64) [3]float64 {
	var out [3]float64
	for i := 0; i < 3; i++ {
		out[i] = op.trans[i]
		for j := 0; j < 3; j++ {
			out[i] += op.rot[i][j] * frac[j]
		}
		out[i] = wrapUnit(out[i])
	}
	return out
}

func orbit(frac [3]float64, ops []symOp) [][3]float64 {
	var out [][3]float64
	for _, op := range ops {
		pos := op.apply(frac)
		dup := false
		for _, seen := range out {
			if samePosition(seen, pos) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, pos)
		}
	}
	return out
}

func wrapUnit(v float64) float64 {
	v -= math.Floor(v)
	if v > 1-1e-9 {
		v = 0
	}
	return v
}

func samePosition(a, b [3]float64) bool {
	for i := 0; i < 3; i++ {
		d := math.Abs(a[i] - b[i])
		d = math.Min(d, 1-d)
		if d > positionTolerance {
			return false
		}
	}
	return true
}

// parseSymOp parses a Jones-faithful operation such as "-x, y+1/2, -z+1/2".
func parseSymOp(expr string) (symOp, error) {
	parts := strings.Split(expr, ",")
	if len(parts) != 3 {
		return symOp{}, fmt.Errorf("symmetry operation %q must have three components", expr)
	}
	var op symOp
	for i, part := range parts {
		row, trans, err := parseSymComponent(part)
		if err != nil {
			return symOp{}, fmt.Errorf("symmetry operation %q: %w", expr, err)
		}
		op.rot[i] = row
		op.trans[i] = trans
	}
	return op, nil
}

func parseSymComponent(expr string) ([3]float64, float64, error) {
	expr = strings.ToLower(strings.ReplaceAll(strings.TrimSpace(expr), " ", ""))
	var row [3]float64
	var trans float64
	if expr == "" {
		return row, 0, errors.New("empty component")
	}
	i := 0
	for i < len(expr) {
		sign := 1.0
		switch expr[i] {
		case '+':
			i++
		case '-':
			sign = -1
			i++
		}
		start := i
		for i < len(expr) && (expr[i] >= '0' && expr[i] <= '9' || expr[i] == '.' || expr[i] == '/') {
			i++
		}
		coef := 1.0
		hasNum := i > start
		if hasNum {
			v, err := parseFraction(expr[start:i])
			if err != nil {
				return row, 0, err
			}
			coef = v
		}
		if i < len(expr) && expr[i] == '*' {
			i++
		}
		if i < len(expr) && expr[i] >= 'x' && expr[i] <= 'z' {
			row[expr[i]-'x'] += sign * coef
			i++
			continue
		}
		if !hasNum {
			return row, 0, fmt.Errorf("unexpected %q", expr[i:])
		}
		trans += sign * coef
	}
	return row, trans, nil
}

func parseFraction(s string) (float64, error) {
	if num, den, ok := strings.Cut(s, "/"); ok {
		n, err := strconv.ParseFloat(num, 64)
		if err != nil {
			return 0, err
		}
		d, err := strconv.ParseFloat(den, 64)
		if err != nil || d == 0 {
			return 0, fmt.Errorf("bad fraction %q", s)
		}
		return n / d, nil
	}
	return strconv.ParseFloat(s, 64)
}
