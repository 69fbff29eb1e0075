package orders

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"strconv"
	"strings"

	"github.com/unkn0wn-root/adsync"
)

const (
	maxImages       = 4
	defaultLanguage = "English"
	defaultEmotion  = "Friendly"
)

// Ack is the body of mutations that answer with a message only.
type Ack struct {
	Message string
}

type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type SignupInput struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

func Signup(in SignupInput) adsync.Mutation {
	return adsync.Mutation{
		Name: "signup",
		Validate: func() error {
			if strings.TrimSpace(in.FirstName) == "" {
				return required("firstName")
			}
			if err := validEmail(in.Email); err != nil {
				return err
			}
			if in.Password == "" {
				return required("password")
			}
			return nil
		},
		Do: func(ctx context.Context, t adsync.Transport) (any, error) {
			return ack(ctx, t, adsync.Send(http.MethodPost, "/user/signup", in))
		},
	}
}

func Login(in Credentials) adsync.Mutation {
	return adsync.Mutation{
		Name:        "login",
		Invalidates: []adsync.Tag{adsync.TagUser},
		Validate: func() error {
			if err := validEmail(in.Email); err != nil {
				return err
			}
			if in.Password == "" {
				return required("password")
			}
			return nil
		},
		Do: func(ctx context.Context, t adsync.Transport) (any, error) {
			return send[*User](ctx, t, adsync.Send(http.MethodPost, "/user/login", in))
		},
	}
}

func Logout() adsync.Mutation {
	return adsync.Mutation{
		Name:        "logout",
		Invalidates: []adsync.Tag{adsync.TagUser},
		Do: func(ctx context.Context, t adsync.Transport) (any, error) {
			return ack(ctx, t, &adsync.Request{Method: http.MethodPost, Path: "/user/logout"})
		},
	}
}

func SendOTP(email string) adsync.Mutation {
	return adsync.Mutation{
		Name:     "sendOtp",
		Validate: func() error { return validEmail(email) },
		Do: func(ctx context.Context, t adsync.Transport) (any, error) {
			return ack(ctx, t, adsync.Send(http.MethodPost, "/user/send/otp", map[string]string{"email": email}))
		},
	}
}

func VerifyOTPAndSignup(email, otp string) adsync.Mutation {
	return adsync.Mutation{
		Name:        "verifyOtpAndSignup",
		Invalidates: []adsync.Tag{adsync.TagUser},
		Validate: func() error {
			if err := validEmail(email); err != nil {
				return err
			}
			if strings.TrimSpace(otp) == "" {
				return required("otp")
			}
			return nil
		},
		Do: func(ctx context.Context, t adsync.Transport) (any, error) {
			body := map[string]string{"email": email, "otp": otp}
			return send[*User](ctx, t, adsync.Send(http.MethodPost, "/user/verify-otp/signup", body))
		},
	}
}

// Image is one uploaded product picture.
type Image struct {
	Name     string
	Content  []byte
	MIMEType string // "" => sniffed
}

type CreateOrderInput struct {
	ProductName    string
	AvatarID       string
	VoiceID        string
	ScriptLanguage string // "" => English
	Description    string
	Length         ScriptLength
	Emotion        string // "" => Friendly
	Images         []Image
}

// CreateOrder uploads a new order as a multipart form. It answers with the
// created order.
func CreateOrder(in CreateOrderInput) adsync.Mutation {
	return adsync.Mutation{
		Name:        "createOrder",
		Invalidates: []adsync.Tag{adsync.TagOrder, adsync.TagOrders},
		Validate:    in.validate,
		Do: func(ctx context.Context, t adsync.Transport) (any, error) {
			words, _ := in.Length.Words()
			form := &adsync.Form{Fields: map[string]string{
				"productName":    strings.TrimSpace(in.ProductName),
				"avatarId":       in.AvatarID,
				"voiceId":        in.VoiceID,
				"scriptLanguage": or(in.ScriptLanguage, defaultLanguage),
				"description":    strings.TrimSpace(in.Description),
				"scriptLength":   strconv.Itoa(words),
				"emotion":        or(in.Emotion, defaultEmotion),
			}}
			for _, img := range in.Images {
				form.Files = append(form.Files, adsync.FormFile{
					Field:    "image",
					Name:     img.Name,
					Content:  img.Content,
					MIMEType: img.MIMEType,
				})
			}
			return send[*Order](ctx, t, &adsync.Request{Method: http.MethodPost, Path: "/order/create", Form: form})
		},
	}
}

func (in CreateOrderInput) validate() error {
	switch {
	case strings.TrimSpace(in.ProductName) == "":
		return required("productName")
	case in.AvatarID == "":
		return required("avatarId")
	case in.VoiceID == "":
		return required("voiceId")
	case strings.TrimSpace(in.Description) == "":
		return required("description")
	case len(in.Images) == 0:
		return &adsync.ValidationError{Field: "image", Err: errors.New("at least one image is required")}
	case len(in.Images) > maxImages:
		return &adsync.ValidationError{Field: "image", Err: fmt.Errorf("at most %d images", maxImages)}
	}
	if _, ok := in.Length.Words(); !ok {
		return &adsync.ValidationError{Field: "scriptLength", Err: fmt.Errorf("unknown length %q", in.Length)}
	}
	for _, img := range in.Images {
		if len(img.Content) == 0 {
			return &adsync.ValidationError{Field: "image", Err: fmt.Errorf("%s is empty", img.Name)}
		}
	}
	return nil
}

// EditProduct rewrites a product's script.
func EditProduct(productID, script string) adsync.Mutation {
	return adsync.Mutation{
		Name:        "editProduct",
		Invalidates: []adsync.Tag{adsync.TagProducts, adsync.TagOrder},
		Validate: func() error {
			if productID == "" {
				return required("productId")
			}
			if strings.TrimSpace(script) == "" {
				return required("script")
			}
			return nil
		},
		Do: func(ctx context.Context, t adsync.Transport) (any, error) {
			body := map[string]string{"productId": productID, "script": script}
			return ack(ctx, t, adsync.Send(http.MethodPatch, "/order/product/edit", body))
		},
	}
}

// EditProductPatch shows the edited script in the cached products of
// orderID before the server confirms it. Run it with EditProduct:
//
//	u := c.Optimistic(orders.EditProductPatch(orderID, productID, script))
//	_, err := u.Run(ctx, orders.EditProduct(productID, script))
func EditProductPatch(orderID, productID, script string) adsync.OptimisticPatch {
	return adsync.OptimisticPatch{
		Key: ProductsKey(orderID),
		Update: func(v any) any {
			list, ok := v.([]*Product)
			if !ok {
				return v
			}
			out := make([]*Product, len(list))
			copy(out, list)
			for i, p := range out {
				if p != nil && p.ID == productID {
					edited := *p
					edited.Script = script
					out[i] = &edited
				}
			}
			return out
		},
	}
}

// GenerateAd starts video generation for an order.
func GenerateAd(orderID string) adsync.Mutation {
	return adsync.Mutation{
		Name:        "generateAd",
		Invalidates: []adsync.Tag{adsync.TagOrder, adsync.TagOrders},
		Validate: func() error {
			if orderID == "" {
				return required("orderId")
			}
			return nil
		},
		Do: func(ctx context.Context, t adsync.Transport) (any, error) {
			return ack(ctx, t, adsync.Send(http.MethodPost, "/order/video/generate", map[string]string{"orderId": orderID}))
		},
	}
}

func send[T any](ctx context.Context, t adsync.Transport, req *adsync.Request) (T, error) {
	var zero T
	resp, err := t.Do(ctx, req)
	if err != nil {
		return zero, err
	}
	v, err := decodeData[T](resp)
	if err != nil {
		return zero, fmt.Errorf("orders: decode %s: %w", req.Path, err)
	}
	return v, nil
}

func ack(ctx context.Context, t adsync.Transport, req *adsync.Request) (*Ack, error) {
	resp, err := t.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	env, err := decodeEnvelope[any](resp)
	if err != nil {
		return nil, fmt.Errorf("orders: decode %s: %w", req.Path, err)
	}
	return &Ack{Message: env.Message}, nil
}

func required(field string) error {
	return &adsync.ValidationError{Field: field, Err: errors.New("is required")}
}

func validEmail(s string) error {
	if s == "" {
		return required("email")
	}
	if _, err := mail.ParseAddress(s); err != nil {
		return &adsync.ValidationError{Field: "email", Err: err}
	}
	return nil
}

func or(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
