package registryState

import "github.com/i5heu/asset-registry/pkg/types"

// Wildcard matches every class or every tag in CookFilterlistTagsByClass.
const Wildcard = "*"

// SerializationOptions selects what a saved or copied state carries.
type SerializationOptions struct {
	SerializeAssetRegistry              bool
	SerializeDependencies               bool
	SerializeSearchableNameDependencies bool
	SerializeManageDependencies         bool
	SerializePackageData                bool
	// UseTagAllowList turns CookFilterlistTagsByClass into the tags to keep
	// instead of the tags to drop.
	UseTagAllowList           bool
	FilterAssetDataWithNoTags bool
	// ResolveRedirectors rewrites saved package edges to skip redirectors.
	ResolveRedirectors        bool
	CookFilterlistTagsByClass map[string]map[string]struct{}
}

// FullOptions keeps everything.
func FullOptions() SerializationOptions {
	return SerializationOptions{
		SerializeAssetRegistry:              true,
		SerializeDependencies:               true,
		SerializeSearchableNameDependencies: true,
		SerializeManageDependencies:         true,
		SerializePackageData:                true,
	}
}

// AddTagFilter registers tag for class, either may be Wildcard.
func (o *SerializationOptions) AddTagFilter(class, tag string) {
	if o.CookFilterlistTagsByClass == nil {
		o.CookFilterlistTagsByClass = make(map[string]map[string]struct{})
	}
	set, ok := o.CookFilterlistTagsByClass[class]
	if !ok {
		set = make(map[string]struct{})
		o.CookFilterlistTagsByClass[class] = set
	}
	set[tag] = struct{}{}
}

// DependencyKinds returns the edge kinds these options keep.
func (o SerializationOptions) DependencyKinds() types.DependencyType {
	if !o.SerializeDependencies {
		return types.DependencyNone
	}
	kinds := types.DependencyPackages
	if o.SerializeSearchableNameDependencies {
		kinds |= types.DependencySearchableName
	}
	if o.SerializeManageDependencies {
		kinds |= types.DependencyManage
	}
	return kinds
}

func listed(set map[string]struct{}, tag string) bool {
	if set == nil {
		return false
	}
	if _, ok := set[Wildcard]; ok {
		return true
	}
	_, ok := set[tag]
	return ok
}

// FilterTags applies the per class tag list to tags.
func (o SerializationOptions) FilterTags(class string, tags types.TagMap) types.TagMap {
	if len(o.CookFilterlistTagsByClass) == 0 && !o.UseTagAllowList {
		return tags
	}
	all := o.CookFilterlistTagsByClass[Wildcard]
	specific := o.CookFilterlistTagsByClass[class]
	return tags.Filter(func(key, _ string) bool {
		inList := listed(all, key) || listed(specific, key)
		if o.UseTagAllowList {
			return inList
		}
		return !inList
	})
}
