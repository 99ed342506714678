package types

// TagValue is one entry of the tag dimension of a Filter. An empty Value
// together with AnyValue set matches every value of the tag.
type TagValue struct {
	Tag      string
	Value    string
	AnyValue bool
}

func (tv TagValue) Matches(value string) bool {
	return tv.AnyValue || tv.Value == value
}

// Filter selects records. Populated dimensions are and'ed, entries inside a
// dimension are or'ed.
type Filter struct {
	PackageNames  []string
	PackagePaths  []string
	ObjectPaths   []string
	ClassNames    []string
	TagsAndValues []TagValue

	RecursivePaths               bool
	RecursiveClasses             bool
	RecursiveClassesExclusionSet []string

	// IncludeOnlyOnDiskAssets skips records that exist only in memory.
	IncludeOnlyOnDiskAssets bool
}

func (f Filter) IsEmpty() bool {
	return len(f.PackageNames) == 0 && len(f.PackagePaths) == 0 && len(f.ObjectPaths) == 0 &&
		len(f.ClassNames) == 0 && len(f.TagsAndValues) == 0
}

// IsRecursive reports whether any recursive expansion is requested.
func (f Filter) IsRecursive() bool {
	return f.RecursivePaths || f.RecursiveClasses
}

// IsValid rejects empty names in any dimension and recursion unless allowed.
func (f Filter) IsValid(allowRecursion bool) bool {
	if !allowRecursion && f.IsRecursive() {
		return false
	}
	for _, dim := range [][]string{f.PackageNames, f.PackagePaths, f.ObjectPaths, f.ClassNames} {
		for _, name := range dim {
			if name == "" {
				return false
			}
		}
	}
	for _, tv := range f.TagsAndValues {
		if tv.Tag == "" {
			return false
		}
	}
	return true
}

// WithTag appends a tag=value entry and returns the filter.
func (f Filter) WithTag(tag, value string) Filter {
	f.TagsAndValues = append(f.TagsAndValues, TagValue{Tag: tag, Value: value})
	return f
}
