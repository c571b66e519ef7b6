package records

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"bizdash/internal/core"
	"bizdash/internal/storage"
)

// ErrMalformedRecord wraps every decoding failure.
var ErrMalformedRecord = errors.New("malformed record")

func malformed(collection, id, field string, err error) error {
	return fmt.Errorf("%w: %s/%s field %q: %v", ErrMalformedRecord, collection, id, field, err)
}

// DecodeProduct converts a stored product. An unparseable price does not
// fail decoding: the product keeps PriceValid=false and the raw text.
func DecodeProduct(doc storage.Document) (core.Product, error) {
	p := core.Product{ID: doc.ID}
	var err error
	if p.Name, err = stringField(doc.Data, "name"); err != nil {
		return p, malformed(core.CollectionProducts, doc.ID, "name", err)
	}
	if p.Category, err = stringField(doc.Data, "category"); err != nil {
		return p, malformed(core.CollectionProducts, doc.ID, "category", err)
	}
	if p.Brand, err = stringField(doc.Data, "brand"); err != nil {
		return p, malformed(core.CollectionProducts, doc.ID, "brand", err)
	}
	// Older product documents keep the stock count under "amount".
	if p.Stock, err = IntValue(firstOf(doc.Data, "stock", "amount")); err != nil {
		return p, malformed(core.CollectionProducts, doc.ID, "stock", err)
	}

	raw := doc.Data["price"]
	p.Price, p.PriceValid = core.NormalizePrice(raw)
	if raw != nil {
		p.RawPrice = fmt.Sprint(raw)
	}
	return p, nil
}

func DecodeCustomer(doc storage.Document) (core.Customer, error) {
	c := core.Customer{ID: doc.ID}
	fields := []struct {
		keys []string
		dst  *string
	}{
		{[]string{"name"}, &c.Name},
		{[]string{"email"}, &c.Email},
		{[]string{"phone"}, &c.Phone},
		{[]string{"address", "endereco"}, &c.Address},
	}
	for _, f := range fields {
		v, err := stringValue(firstOf(doc.Data, f.keys...))
		if err != nil {
			return c, malformed(core.CollectionCustomers, doc.ID, f.keys[0], err)
		}
		*f.dst = v
	}
	return c, nil
}

// DecodeSale converts a stored sale. Dates may be time values, RFC 3339 or
// YYYY-MM-DD strings, unix seconds, or {seconds, nanoseconds} maps.
func DecodeSale(doc storage.Document) (core.Sale, error) {
	s := core.Sale{ID: doc.ID}
	var err error
	if s.ProductID, err = stringField(doc.Data, "productId"); err != nil {
		return s, malformed(core.CollectionSales, doc.ID, "productId", err)
	}
	if s.CustomerID, err = stringField(doc.Data, "customerId"); err != nil {
		return s, malformed(core.CollectionSales, doc.ID, "customerId", err)
	}
	if s.Amount, err = intField(doc.Data, "amount"); err != nil {
		return s, malformed(core.CollectionSales, doc.ID, "amount", err)
	}
	if s.Date, err = TimeValue(doc.Data["date"]); err != nil {
		return s, malformed(core.CollectionSales, doc.ID, "date", err)
	}
	if raw, ok := doc.Data["unitPrice"]; ok && raw != nil {
		price, err := core.ParsePrice(raw)
		if err != nil {
			return s, malformed(core.CollectionSales, doc.ID, "unitPrice", err)
		}
		s.UnitPrice = &price
	}
	return s, nil
}

func EncodeProduct(p core.Product) map[string]any {
	return map[string]any{
		"name":     strings.TrimSpace(p.Name),
		"price":    p.Price.String(),
		"category": strings.TrimSpace(p.Category),
		"brand":    strings.TrimSpace(p.Brand),
		"stock":    p.Stock,
	}
}

func EncodeCustomer(c core.Customer) map[string]any {
	return map[string]any{
		"name":    strings.TrimSpace(c.Name),
		"email":   strings.TrimSpace(c.Email),
		"phone":   strings.TrimSpace(c.Phone),
		"address": strings.TrimSpace(c.Address),
	}
}

func EncodeSale(s core.Sale) map[string]any {
	data := map[string]any{
		"productId":  s.ProductID,
		"customerId": s.CustomerID,
		"amount":     s.Amount,
		"date":       s.Date.UTC(),
	}
	if s.UnitPrice != nil {
		data["unitPrice"] = s.UnitPrice.String()
	}
	return data
}

func stringField(data map[string]any, key string) (string, error) {
	return stringValue(data[key])
}

func stringValue(raw any) (string, error) {
	switch v := raw.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case json.Number:
		return v.String(), nil
	case int, int32, int64, float64:
		return fmt.Sprint(v), nil
	default:
		return "", fmt.Errorf("unexpected type %T", v)
	}
}

func intField(data map[string]any, key string) (int, error) {
	return IntValue(data[key])
}

// IntValue converts the numeric shapes the stores return into an int.
// Missing values are zero; fractional values are rejected.
func IntValue(raw any) (int, error) {
	switch v := raw.(type) {
	case nil:
		return 0, nil
	case int:
		return v, nil
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	case uint32:
		return int(v), nil
	case float32:
		return floatToInt(float64(v))
	case float64:
		return floatToInt(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n), nil
		}
		f, err := v.Float64()
		if err != nil {
			return 0, err
		}
		return floatToInt(f)
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0, nil
		}
		return strconv.Atoi(s)
	default:
		return 0, fmt.Errorf("unexpected type %T", raw)
	}
}

func floatToInt(f float64) (int, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, fmt.Errorf("not an integer: %v", f)
	}
	return int(f), nil
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// TimeValue converts the timestamp shapes the stores return into a UTC time.
func TimeValue(raw any) (time.Time, error) {
	switch v := raw.(type) {
	case time.Time:
		if v.IsZero() {
			return time.Time{}, core.ErrZeroDate
		}
		return v.UTC(), nil
	case string:
		s := strings.TrimSpace(v)
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), nil
			}
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return time.Unix(n, 0).UTC(), nil
		}
		return time.Time{}, fmt.Errorf("unrecognized date %q", v)
	case map[string]any:
		secs, err := IntValue(firstOf(v, "seconds", "_seconds"))
		if err != nil {
			return time.Time{}, err
		}
		nanos, err := IntValue(firstOf(v, "nanoseconds", "_nanoseconds", "nanos"))
		if err != nil {
			return time.Time{}, err
		}
		if secs == 0 && nanos == 0 {
			return time.Time{}, core.ErrZeroDate
		}
		return time.Unix(int64(secs), int64(nanos)).UTC(), nil
	case nil:
		return time.Time{}, core.ErrZeroDate
	default:
		secs, err := IntValue(raw)
		if err != nil {
			return time.Time{}, err
		}
		return time.Unix(int64(secs), 0).UTC(), nil
	}
}

func firstOf(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			return v
		}
	}
	return nil
}
