package orders

import (
	"context"
	"errors"

	"github.com/unkn0wn-root/adsync"
	"github.com/unkn0wn-root/adsync/codec"
)

// EventOrderUpdate carries a full order snapshot after a server-side change.
const EventOrderUpdate = "orderUpdate"

type orderUpdate struct {
	EventType string `json:"eventType"`
	Order     *Order `json:"order"`
}

// RegisterPush routes order events from r into the cache.
func RegisterPush(r *adsync.Reconciler) {
	r.Handle(EventOrderUpdate, HandleOrderUpdate)
}

// HandleOrderUpdate writes the pushed order into the cached single-order
// entry for its id and into the cached orders collection. Collection
// elements for other orders keep their identity; an order the collection
// does not hold yet is appended. Keys nobody has cached are left alone.
func HandleOrderUpdate(_ context.Context, c *adsync.Client, ev adsync.PushEvent) error {
	msg, err := codec.Limit[orderUpdate]{Inner: codec.JSON[orderUpdate]{}, MaxDecode: maxPayload}.Decode(ev.Raw)
	if err != nil {
		return &adsync.PushParseError{EventType: ev.Type, Err: err}
	}
	if msg.Order == nil || msg.Order.ID == "" {
		return &adsync.PushParseError{EventType: ev.Type, Err: errors.New("order with _id is required")}
	}
	o := msg.Order

	c.Patch(OrderKey(o.ID), func(any) any { return o })
	c.Patch(AllOrdersKey(), func(v any) any { return replaceOrder(v, o) })
	return nil
}

func replaceOrder(v any, o *Order) any {
	list, ok := v.([]*Order)
	if !ok {
		return v
	}
	for i, cur := range list {
		if cur != nil && cur.ID == o.ID {
			out := make([]*Order, len(list))
			copy(out, list)
			out[i] = o
			return out
		}
	}
	out := make([]*Order, len(list), len(list)+1)
	copy(out, list)
	return append(out, o)
}
