package querycache

import "net/url"

// Key идентифицирует запрос: ресурс и канонизированный набор параметров.
// Ключи сравнимы по значению и годятся как ключ map.
type Key struct {
	Resource string
	Params   string
}

// NewKey строит ключ из ресурса и пар "имя, значение". Параметры сортируются,
// поэтому порядок пар не влияет на равенство ключей. Пустые значения опускаются.
func NewKey(resource string, kv ...string) Key {
	if len(kv) == 0 {
		return Key{Resource: resource}
	}
	v := make(url.Values, len(kv)/2)
	for i := 0; i < len(kv); i += 2 {
		val := ""
		if i+1 < len(kv) {
			val = kv[i+1]
		}
		if val == "" {
			continue
		}
		v.Set(kv[i], val)
	}
	return Key{Resource: resource, Params: v.Encode()}
}

func (k Key) String() string {
	if k.Params == "" {
		return k.Resource
	}
	return k.Resource + "?" + k.Params
}

// Filter выбирает записи кэша для инвалидации.
type Filter interface {
	Match(Key) bool
}

// Match реализует Filter: точное совпадение ключа.
func (k Key) Match(other Key) bool { return k == other }

type prefix string

func (p prefix) Match(k Key) bool { return k.Resource == string(p) }

// Prefix выбирает все ключи ресурса независимо от параметров.
func Prefix(resource string) Filter { return prefix(resource) }
