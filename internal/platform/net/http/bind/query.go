package bind

import (
	"net/url"
	"reflect"
	"strconv"
	"strings"

	perr "sftpetl/internal/platform/errors"
)

// decodeValues walks the exported fields of rv and fills those tagged `query:"name"`
func decodeValues(rv reflect.Value, vals url.Values) error {
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		sf := rt.Field(i)
		if !sf.IsExported() {
			continue
		}
		name := sf.Tag.Get("query")
		if idx := strings.Index(name, ","); idx >= 0 {
			name = name[:idx]
		}
		if name == "" || name == "-" {
			continue
		}
		raw, ok := vals[name]
		if !ok || len(raw) == 0 {
			continue
		}
		f := rv.Field(i)
		if f.Kind() == reflect.Slice {
			out := reflect.MakeSlice(f.Type(), 0, len(raw))
			for _, s := range raw {
				ev := reflect.New(f.Type().Elem()).Elem()
				if err := setScalar(ev, s); err != nil {
					return queryErr(name, s, err)
				}
				out = reflect.Append(out, ev)
			}
			f.Set(out)
			continue
		}
		if err := setScalar(f, raw[0]); err != nil {
			return queryErr(name, raw[0], err)
		}
	}
	return nil
}

func setScalar(f reflect.Value, s string) error {
	s = strings.TrimSpace(s)
	switch f.Kind() {
	case reflect.String:
		f.SetString(s)
	case reflect.Bool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return err
		}
		f.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(s, 10, f.Type().Bits())
		if err != nil {
			return err
		}
		f.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(s, 10, f.Type().Bits())
		if err != nil {
			return err
		}
		f.SetUint(n)
	default:
		return perr.Newf(perr.ErrorCodeInvalidArgument, "unsupported query field kind %s", f.Kind())
	}
	return nil
}

func queryErr(name, raw string, err error) error {
	return perr.WithField(perr.Wrapf(err, perr.ErrorCodeInvalidArgument, "invalid value %q for %s", raw, name), name)
}
