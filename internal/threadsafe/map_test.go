package threadsafe

import "testing"

func TestMap(t *testing.T) {
	m := NewMap()

	m.Put("hello", "world")
	if v, ok := m.Get("hello"); !ok || v.(string) != "world" {
		t.Errorf("Get(hello) = %v, %v", v, ok)
	}

	if m.Add("hello", "mundo") {
		t.Error("Add replaced an existing key")
	}
	if v, _ := m.Get("hello"); v.(string) != "world" {
		t.Errorf("value clobbered by failed Add: %v", v)
	}
	if !m.Add("adios", "mundo") {
		t.Error("Add refused a fresh key")
	}

	if v, ok := m.Del("hello"); !ok || v.(string) != "world" {
		t.Errorf("Del(hello) = %v, %v", v, ok)
	}
	if _, ok := m.Get("hello"); ok {
		t.Error("key survived Del")
	}
	if _, ok := m.Del("hello"); ok {
		t.Error("second Del of the same key reported a value")
	}

	var n int
	m.Do(func(values map[interface{}]interface{}) {
		n = len(values)
	})
	if n != 1 {
		t.Errorf("map holds %d values, want 1", n)
	}
}
