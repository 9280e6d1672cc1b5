package crypto

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/cosu123/reality-firewall-v3/internal/domain"
)

type absent struct{}

// Absent marks a map value that must be left out of the canonical form.
// It differs from nil, which renders as null.
var Absent any = absent{}

// maxSafeInteger is the largest integer every IEEE-754 double consumer reads
// back exactly.
const maxSafeInteger = 1<<53 - 1

// maxWalkDepth bounds the pre-marshal walk so cyclic values fail instead of
// recursing forever.
const maxWalkDepth = 256

// CanonicalizeJSON canonicalizes a single JSON document. Trailing data is rejected.
func CanonicalizeJSON(input []byte) ([]byte, error) {
	if !utf8.Valid(input) {
		return nil, fmt.Errorf("%w: invalid UTF-8", domain.ErrNonCanonicalizable)
	}
	dec := json.NewDecoder(bytes.NewReader(input))
	dec.UseNumber()

	var value any
	if err := dec.Decode(&value); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if err := ensureEOF(dec); err != nil {
		return nil, err
	}

	buf := &bytes.Buffer{}
	if err := writeCanonical(buf, value); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Canonicalize renders v in its single canonical byte form. Structs go through
// their JSON tags, so omitempty fields and nil pointers are absent.
func Canonicalize(v any) ([]byte, error) {
	if _, ok := v.(absent); ok {
		return nil, fmt.Errorf("%w: absent top-level value", domain.ErrNonCanonicalizable)
	}
	switch value := v.(type) {
	case json.RawMessage:
		return CanonicalizeJSON([]byte(value))
	case []byte:
		return CanonicalizeJSON(value)
	}
	buf := &bytes.Buffer{}
	if err := writeCanonical(buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func ensureEOF(dec *json.Decoder) error {
	var extra any
	if err := dec.Decode(&extra); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return errors.New("invalid JSON: trailing data")
}

func writeCanonical(buf *bytes.Buffer, value any) error {
	switch v := value.(type) {
	case nil:
		buf.WriteString("null")
	case absent:
		// only reachable inside arrays, where JSON has no hole to leave
		buf.WriteString("null")
	case bool:
		if v {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case string:
		return writeString(buf, v)
	case json.Number:
		num, err := canonicalizeNumberString(v.String())
		if err != nil {
			return err
		}
		buf.WriteString(num)
	case float64:
		return writeFloat(buf, v)
	case float32:
		return writeFloat(buf, float64(v))
	case int:
		return writeInt(buf, int64(v))
	case int8:
		return writeInt(buf, int64(v))
	case int16:
		return writeInt(buf, int64(v))
	case int32:
		return writeInt(buf, int64(v))
	case int64:
		return writeInt(buf, v)
	case uint:
		return writeUint(buf, uint64(v))
	case uint8:
		return writeUint(buf, uint64(v))
	case uint16:
		return writeUint(buf, uint64(v))
	case uint32:
		return writeUint(buf, uint64(v))
	case uint64:
		return writeUint(buf, v)
	case map[string]any:
		return writeObject(buf, v)
	case []any:
		return writeArray(buf, v)
	default:
		return writeMarshaled(buf, value)
	}
	return nil
}

// writeMarshaled routes values through their JSON encoding. encoding/json
// would silently repair invalid UTF-8 and render Absent as {}, so both are
// rejected before marshaling.
func writeMarshaled(buf *bytes.Buffer, value any) error {
	if err := checkMarshalable(reflect.ValueOf(value), 0); err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		var unsupported *json.UnsupportedValueError
		if errors.As(err, &unsupported) {
			return fmt.Errorf("%w: %s", domain.ErrNonCanonicalizable, unsupported.Str)
		}
		return fmt.Errorf("%w: %T: %v", domain.ErrNonCanonicalizable, value, err)
	}
	// numbers decode as float64: integers were range checked above and
	// encoding/json prints floats in shortest round-trip form
	dec := json.NewDecoder(bytes.NewReader(raw))
	var decoded any
	if err := dec.Decode(&decoded); err != nil {
		return fmt.Errorf("decode %T: %w", value, err)
	}
	return writeCanonical(buf, decoded)
}

func writeObject(buf *bytes.Buffer, obj map[string]any) error {
	keys := make([]string, 0, len(obj))
	for k, v := range obj {
		if _, skip := v.(absent); skip {
			continue
		}
		keys = append(keys, k)
	}
	// byte-wise order, not locale order
	sort.Strings(keys)

	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeString(buf, k); err != nil {
			return err
		}
		buf.WriteByte(':')
		if err := writeCanonical(buf, obj[k]); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

func writeArray(buf *bytes.Buffer, arr []any) error {
	buf.WriteByte('[')
	for i, item := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeCanonical(buf, item); err != nil {
			return err
		}
	}
	buf.WriteByte(']')
	return nil
}

func writeString(buf *bytes.Buffer, s string) error {
	if !utf8.ValidString(s) {
		return fmt.Errorf("%w: invalid UTF-8 in %q", domain.ErrNonCanonicalizable, s)
	}
	buf.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"', '\\':
			buf.WriteByte('\\')
			buf.WriteRune(r)
		case '\b':
			buf.WriteString(`\b`)
		case '\f':
			buf.WriteString(`\f`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			if r < 0x20 {
				buf.WriteString(`\u00`)
				buf.WriteByte(hexLower[r>>4])
				buf.WriteByte(hexLower[r&0x0f])
			} else {
				buf.WriteRune(r)
			}
		}
	}
	buf.WriteByte('"')
	return nil
}

var hexLower = []byte("0123456789abcdef")

func writeFloat(buf *bytes.Buffer, f float64) error {
	num, err := canonicalizeFloat(f)
	if err != nil {
		return err
	}
	buf.WriteString(num)
	return nil
}

func writeInt(buf *bytes.Buffer, v int64) error {
	if v > maxSafeInteger || v < -maxSafeInteger {
		return fmt.Errorf("%w: integer %d exceeds 2^53-1", domain.ErrNonCanonicalizable, v)
	}
	buf.WriteString(strconv.FormatInt(v, 10))
	return nil
}

func writeUint(buf *bytes.Buffer, v uint64) error {
	if v > maxSafeInteger {
		return fmt.Errorf("%w: integer %d exceeds 2^53-1", domain.ErrNonCanonicalizable, v)
	}
	buf.WriteString(strconv.FormatUint(v, 10))
	return nil
}

// canonicalizeNumberString formats a JSON number. Integer literals must be
// exactly representable; fractional and exponent forms round like any double.
func canonicalizeNumberString(number string) (string, error) {
	if !strings.ContainsAny(number, ".eE") {
		n, err := strconv.ParseInt(number, 10, 64)
		if err != nil || n > maxSafeInteger || n < -maxSafeInteger {
			return "", fmt.Errorf("%w: integer %s exceeds 2^53-1", domain.ErrNonCanonicalizable, number)
		}
		if n == 0 {
			return "0", nil
		}
		return strconv.FormatInt(n, 10), nil
	}
	f, err := strconv.ParseFloat(number, 64)
	if err != nil {
		return "", fmt.Errorf("%w: %q", domain.ErrNonCanonicalizable, number)
	}
	return canonicalizeFloat(f)
}

// canonicalizeFloat prints the shortest round-trip form using ECMAScript
// exponent rules. -0 prints as 0.
func canonicalizeFloat(f float64) (string, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", fmt.Errorf("%w: %v", domain.ErrNonCanonicalizable, f)
	}
	if f == 0 {
		return "0", nil
	}

	sign := ""
	if f < 0 {
		sign = "-"
		f = math.Abs(f)
	}

	mantissa, exp, err := splitScientific(f)
	if err != nil {
		return "", err
	}

	digits := strings.ReplaceAll(mantissa, ".", "")

	if exp <= -7 || exp >= 21 {
		expStr := strconv.Itoa(exp)
		if exp > 0 {
			expStr = "+" + expStr
		}
		if len(digits) == 1 {
			return sign + digits + "e" + expStr, nil
		}
		return sign + digits[:1] + "." + digits[1:] + "e" + expStr, nil
	}

	point := exp + 1
	if point >= len(digits) {
		return sign + digits + strings.Repeat("0", point-len(digits)), nil
	}
	if point <= 0 {
		return sign + "0." + strings.Repeat("0", -point) + digits, nil
	}
	return sign + digits[:point] + "." + digits[point:], nil
}

// checkMarshalable walks what encoding/json will see: exported struct fields,
// map keys and values, slice elements.
func checkMarshalable(v reflect.Value, depth int) error {
	if depth > maxWalkDepth {
		return fmt.Errorf("%w: value nested too deeply or cyclic", domain.ErrNonCanonicalizable)
	}
	if !v.IsValid() {
		return nil
	}
	if v.Type() == reflect.TypeOf(absent{}) {
		return fmt.Errorf("%w: Absent is only valid as a map[string]any value; use omitempty on struct fields", domain.ErrNonCanonicalizable)
	}
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if n := v.Int(); n > maxSafeInteger || n < -maxSafeInteger {
			return fmt.Errorf("%w: integer %d exceeds 2^53-1", domain.ErrNonCanonicalizable, n)
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		if n := v.Uint(); n > maxSafeInteger {
			return fmt.Errorf("%w: integer %d exceeds 2^53-1", domain.ErrNonCanonicalizable, n)
		}
	case reflect.String:
		if !utf8.ValidString(v.String()) {
			return fmt.Errorf("%w: invalid UTF-8 in %q", domain.ErrNonCanonicalizable, v.String())
		}
	case reflect.Pointer, reflect.Interface:
		if v.IsNil() {
			return nil
		}
		return checkMarshalable(v.Elem(), depth+1)
	case reflect.Struct:
		t := v.Type()
		for i := 0; i < v.NumField(); i++ {
			if !t.Field(i).IsExported() {
				continue
			}
			if err := checkMarshalable(v.Field(i), depth+1); err != nil {
				return err
			}
		}
	case reflect.Map:
		iter := v.MapRange()
		for iter.Next() {
			if err := checkMarshalable(iter.Key(), depth+1); err != nil {
				return err
			}
			if err := checkMarshalable(iter.Value(), depth+1); err != nil {
				return err
			}
		}
	case reflect.Slice, reflect.Array:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return nil
		}
		for i := 0; i < v.Len(); i++ {
			if err := checkMarshalable(v.Index(i), depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

func splitScientific(f float64) (string, int, error) {
	s := strconv.FormatFloat(f, 'e', -1, 64)
	parts := strings.SplitN(s, "e", 2)
	if len(parts) != 2 {
		return "", 0, fmt.Errorf("invalid float format: %q", s)
	}
	exp, err := strconv.Atoi(parts[1])
	if err != nil {
		return "", 0, fmt.Errorf("invalid float exponent: %w", err)
	}
	return parts[0], exp, nil
}
