package orders

import (
	"context"
	"fmt"
	"net/url"

	"github.com/unkn0wn-root/adsync"
	"github.com/unkn0wn-root/adsync/codec"
)

const (
	EndpointUserDetails = "getUserDetails"
	EndpointAvatars     = "getAvatars"
	EndpointVoices      = "getVoices"
	EndpointProducts    = "getProducts"
	EndpointAllOrders   = "getAllOrders"
	EndpointOrder       = "getOrder"
)

// maxPayload bounds decoded response bodies.
const maxPayload = 8 << 20

func UserKey() adsync.CacheKey {
	return adsync.Key(EndpointUserDetails)
}

func AvatarsKey() adsync.CacheKey {
	return adsync.Key(EndpointAvatars)
}

func VoicesKey() adsync.CacheKey {
	return adsync.Key(EndpointVoices)
}

func AllOrdersKey() adsync.CacheKey {
	return adsync.Key(EndpointAllOrders)
}

func ProductsKey(orderID string) adsync.CacheKey {
	return adsync.Key(EndpointProducts, orderID)
}

func OrderKey(orderID string) adsync.CacheKey {
	return adsync.Key(EndpointOrder, orderID)
}

// Register adds every order-service query to c.
func Register(c *adsync.Client) error {
	eps := []adsync.Endpoint{
		{Name: EndpointUserDetails, Fetch: getter[*User](fixed("/user/user"), adsync.TagUser)},
		{Name: EndpointAvatars, Fetch: getter[[]Avatar](fixed("/order/avatars"), adsync.TagAvatar)},
		{Name: EndpointVoices, Fetch: getter[[]Voice](fixed("/order/voices"), adsync.TagVoice)},
		{Name: EndpointProducts, Fetch: getter[[]*Product](withID("/order/products/"), adsync.TagProducts)},
		{Name: EndpointAllOrders, Fetch: getter[[]*Order](fixed("/order/all"), adsync.TagOrders)},
		{Name: EndpointOrder, Fetch: getter[*Order](withID("/order/single/"), adsync.TagOrder)},
	}
	for _, ep := range eps {
		if err := c.Register(ep); err != nil {
			return err
		}
	}
	return nil
}

func fixed(path string) func(string) (string, error) {
	return func(string) (string, error) { return path, nil }
}

func withID(prefix string) func(string) (string, error) {
	return func(id string) (string, error) {
		if id == "" {
			return "", &adsync.ValidationError{Field: "id", Err: fmt.Errorf("%s: id is required", prefix)}
		}
		return prefix + url.PathEscape(id), nil
	}
}

func getter[T any](path func(arg string) (string, error), provides ...adsync.Tag) adsync.FetchFunc {
	return func(ctx context.Context, t adsync.Transport, arg string) (any, []adsync.Tag, error) {
		p, err := path(arg)
		if err != nil {
			return nil, nil, err
		}
		resp, err := t.Do(ctx, adsync.Get(p))
		if err != nil {
			return nil, nil, err
		}
		v, err := decodeData[T](resp)
		if err != nil {
			return nil, nil, fmt.Errorf("orders: decode %s: %w", p, err)
		}
		return v, provides, nil
	}
}

// envelope is the order service's response shape.
type envelope[T any] struct {
	Data    T      `json:"data"`
	Message string `json:"message"`
}

func decodeEnvelope[T any](resp *adsync.Response) (envelope[T], error) {
	if len(resp.Body) == 0 {
		return envelope[T]{}, nil
	}
	c := codec.Limit[envelope[T]]{
		Inner:     codec.ForContentType[envelope[T]](resp.ContentType()),
		MaxDecode: maxPayload,
	}
	return c.Decode(resp.Body)
}

func decodeData[T any](resp *adsync.Response) (T, error) {
	env, err := decodeEnvelope[T](resp)
	return env.Data, err
}

// Typed views over cached results. They return the zero value when the
// result holds no value of the expected type.

func UserOf(r adsync.Result) *User {
	v, _ := r.Value.(*User)
	return v
}

func Avatars(r adsync.Result) []Avatar {
	v, _ := r.Value.([]Avatar)
	return v
}

func Voices(r adsync.Result) []Voice {
	v, _ := r.Value.([]Voice)
	return v
}

func Products(r adsync.Result) []*Product {
	v, _ := r.Value.([]*Product)
	return v
}

func AllOrders(r adsync.Result) []*Order {
	v, _ := r.Value.([]*Order)
	return v
}

func OrderOf(r adsync.Result) *Order {
	v, _ := r.Value.(*Order)
	return v
}
