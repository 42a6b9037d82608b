package pipeline

import (
	"context"

	"github.com/dalton-wilson/CBM/internal/group"
	"github.com/dalton-wilson/CBM/internal/table"
)

// TableStore persists derived tables under slash-separated keys.
type TableStore interface {
	PutTable(ctx context.Context, key string, t *table.Table) error
	GetTable(ctx context.Context, key string) (*table.Table, error)
	ListTables(ctx context.Context, prefix string) ([]string, error)
	DeleteTables(ctx context.Context, prefix string) error
}

// Store key layout.
const (
	KeyMaster       = "master"
	PrefixSingle    = "single/"
	PrefixCombined  = "combined/"
	PrefixDated     = "dated/"
	PrefixRecommend = "recommend/"
	PrefixProgress  = "progress/"
	PrefixAmbiguous = "ambiguities"
)

// Every prefix a run rewrites.
var outputPrefixes = []string{
	PrefixSingle, PrefixCombined, PrefixDated, KeyMaster,
	GroupPrefix(group.KindStudent), GroupPrefix(group.KindClass),
	PrefixRecommend, PrefixProgress, PrefixAmbiguous,
}

func SingleKey(admin, test string) string { return PrefixSingle + admin + "/" + test }
func CombinedKey(admin string) string     { return PrefixCombined + admin }
func DatedKey(admin string) string        { return PrefixDated + admin }

// GroupPrefix is "student/" or "class/".
func GroupPrefix(k group.Kind) string { return string(k) + "/" }

func GroupKey(k group.Kind, name string) string { return GroupPrefix(k) + name }

func RecommendKey(k group.Kind, name string) string {
	return PrefixRecommend + string(k) + "/" + name
}

func ProgressKey(k group.Kind, name string) string {
	return PrefixProgress + string(k) + "/" + name
}
