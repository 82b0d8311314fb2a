// Package layering merges variant snapshots so an environment only has to
// declare what differs from its defaults.
package layering

import "reflect"

// Merge composes layers ordered from strongest to weakest. Scalars always come
// from the strongest layer. Nil pointers, maps, slices and interfaces are
// filled from weaker layers; maps merge key by key; structs merge field by
// field. The inputs are never aliased by the result.
func Merge[T any](layers ...T) T {
	var zero T
	if len(layers) == 0 {
		return zero
	}

	merged := deepCopy(reflect.ValueOf(layers[len(layers)-1]))
	for i := len(layers) - 2; i >= 0; i-- {
		merged = overlay(reflect.ValueOf(layers[i]), merged)
	}
	return asType[T](merged)
}

// Clone returns a deep copy of v. Unexported struct fields are left zero.
func Clone[T any](v T) T {
	return asType[T](deepCopy(reflect.ValueOf(v)))
}

func asType[T any](v reflect.Value) T {
	var zero T
	if !v.IsValid() {
		return zero
	}
	target := reflect.TypeOf((*T)(nil)).Elem()
	if v.Type() == target {
		return v.Interface().(T)
	}
	out := reflect.New(target).Elem()
	out.Set(v.Convert(target))
	return out.Interface().(T)
}

// overlay returns strong laid over weak.
func overlay(strong, weak reflect.Value) reflect.Value {
	if !strong.IsValid() {
		return deepCopy(weak)
	}
	if weak.IsValid() && weak.Kind() != strong.Kind() {
		weak = reflect.Value{}
	}

	switch strong.Kind() {
	case reflect.Pointer:
		if strong.IsNil() {
			return deepCopy(weak)
		}
		out := reflect.New(strong.Type().Elem())
		out.Elem().Set(overlay(strong.Elem(), elemOf(weak)))
		return out
	case reflect.Interface:
		if strong.IsNil() {
			return deepCopy(weak)
		}
		return overlay(strong.Elem(), elemOf(weak)).Convert(strong.Type())
	case reflect.Struct:
		out := reflect.New(strong.Type()).Elem()
		sameType := weak.IsValid() && weak.Type() == strong.Type()
		for i := 0; i < strong.NumField(); i++ {
			if !out.Field(i).CanSet() {
				continue
			}
			var weakField reflect.Value
			if sameType {
				weakField = weak.Field(i)
			}
			out.Field(i).Set(overlay(strong.Field(i), weakField))
		}
		return out
	case reflect.Map:
		if strong.IsNil() {
			return deepCopy(weak)
		}
		out := reflect.MakeMapWithSize(strong.Type(), strong.Len())
		if weak.IsValid() && !weak.IsNil() && weak.Type() == strong.Type() {
			for iter := weak.MapRange(); iter.Next(); {
				out.SetMapIndex(iter.Key(), deepCopy(iter.Value()))
			}
		}
		for iter := strong.MapRange(); iter.Next(); {
			key := iter.Key()
			if existing := out.MapIndex(key); existing.IsValid() {
				out.SetMapIndex(key, overlay(iter.Value(), existing))
				continue
			}
			out.SetMapIndex(key, deepCopy(iter.Value()))
		}
		return out
	case reflect.Slice:
		if strong.IsNil() {
			return deepCopy(weak)
		}
		return deepCopy(strong)
	case reflect.Array:
		out := reflect.New(strong.Type()).Elem()
		for i := 0; i < strong.Len(); i++ {
			var weakElem reflect.Value
			if weak.IsValid() && weak.Len() > i {
				weakElem = weak.Index(i)
			}
			out.Index(i).Set(overlay(strong.Index(i), weakElem))
		}
		return out
	default:
		return deepCopy(strong)
	}
}

func elemOf(v reflect.Value) reflect.Value {
	if !v.IsValid() || v.IsNil() {
		return reflect.Value{}
	}
	return v.Elem()
}

func deepCopy(v reflect.Value) reflect.Value {
	if !v.IsValid() {
		return v
	}

	switch v.Kind() {
	case reflect.Pointer:
		if v.IsNil() {
			return reflect.Zero(v.Type())
		}
		out := reflect.New(v.Type().Elem())
		out.Elem().Set(deepCopy(v.Elem()))
		return out
	case reflect.Interface:
		if v.IsNil() {
			return reflect.Zero(v.Type())
		}
		return deepCopy(v.Elem()).Convert(v.Type())
	case reflect.Struct:
		out := reflect.New(v.Type()).Elem()
		for i := 0; i < v.NumField(); i++ {
			if out.Field(i).CanSet() {
				out.Field(i).Set(deepCopy(v.Field(i)))
			}
		}
		return out
	case reflect.Map:
		if v.IsNil() {
			return reflect.Zero(v.Type())
		}
		out := reflect.MakeMapWithSize(v.Type(), v.Len())
		for iter := v.MapRange(); iter.Next(); {
			out.SetMapIndex(iter.Key(), deepCopy(iter.Value()))
		}
		return out
	case reflect.Slice:
		if v.IsNil() {
			return reflect.Zero(v.Type())
		}
		out := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		for i := 0; i < v.Len(); i++ {
			out.Index(i).Set(deepCopy(v.Index(i)))
		}
		return out
	case reflect.Array:
		out := reflect.New(v.Type()).Elem()
		for i := 0; i < v.Len(); i++ {
			out.Index(i).Set(deepCopy(v.Index(i)))
		}
		return out
	default:
		out := reflect.New(v.Type()).Elem()
		out.Set(v)
		return out
	}
}
