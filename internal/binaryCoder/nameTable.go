package binaryCoder

// NameTable interns strings for an archive. Index 0 is always the empty name.
type NameTable struct {
	index map[string]int
	names []string
}

func NewNameTable() *NameTable {
	return &NameTable{index: map[string]int{"": 0}, names: []string{""}}
}

// Add interns name and returns its index.
func (t *NameTable) Add(name string) int {
	if i, ok := t.index[name]; ok {
		return i
	}
	i := len(t.names)
	t.index[name] = i
	t.names = append(t.names, name)
	return i
}

// Index returns the index of an interned name. Unknown names map to 0.
func (t *NameTable) Index(name string) int {
	return t.index[name]
}

func (t *NameTable) Len() int        { return len(t.names) }
func (t *NameTable) Names() []string { return t.names }

func (t *NameTable) Write(w *Writer) {
	w.WriteCount(len(t.names))
	for _, name := range t.names {
		w.WriteString(name)
	}
}

// WriteName writes the index of an already interned name.
func (w *Writer) WriteName(t *NameTable, name string) {
	w.WriteUvarint(uint64(t.Index(name)))
}

// ReadNameTable reads a table written by NameTable.Write.
func ReadNameTable(r *Reader) []string {
	n := r.ReadCount(1)
	names := make([]string, 0, n)
	for i := 0; i < n && !r.Failed(); i++ {
		names = append(names, r.ReadString())
	}
	if r.Failed() {
		return nil
	}
	return names
}

// ReadName reads an index into names.
func (r *Reader) ReadName(names []string) string {
	i := r.ReadIndex(len(names))
	if r.Failed() {
		return ""
	}
	return names[i]
}
