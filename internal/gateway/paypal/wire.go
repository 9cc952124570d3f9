package paypal

import (
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-checkout/internal/domain/payment"
)

// encodeOrder renders the create-order request body.
func encodeOrder(req payment.IntentRequest, brand string) []byte {
	currency := strings.ToUpper(req.Currency)
	money := func(e *jx.Encoder, v string) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("currency_code", func(e *jx.Encoder) { e.Str(currency) })
			e.Field("value", func(e *jx.Encoder) { e.Str(v) })
		})
	}

	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("intent", func(e *jx.Encoder) { e.Str("CAPTURE") })
		e.Field("purchase_units", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				e.Obj(func(e *jx.Encoder) {
					e.Field("amount", func(e *jx.Encoder) {
						e.Obj(func(e *jx.Encoder) {
							e.Field("currency_code", func(e *jx.Encoder) { e.Str(currency) })
							e.Field("value", func(e *jx.Encoder) { e.Str(req.Amount.StringFixed(2)) })
							e.Field("breakdown", func(e *jx.Encoder) {
								e.Obj(func(e *jx.Encoder) {
									e.Field("item_total", func(e *jx.Encoder) { money(e, req.ItemTotal().StringFixed(2)) })
								})
							})
						})
					})
					e.Field("items", func(e *jx.Encoder) {
						e.Arr(func(e *jx.Encoder) {
							for _, li := range req.LineItems {
								e.Obj(func(e *jx.Encoder) {
									e.Field("name", func(e *jx.Encoder) { e.Str(li.Name) })
									e.Field("quantity", func(e *jx.Encoder) { e.Str(strconv.Itoa(li.Quantity)) })
									e.Field("unit_amount", func(e *jx.Encoder) { money(e, li.UnitAmount.StringFixed(2)) })
								})
							}
						})
					})
					if req.Description != "" {
						e.Field("description", func(e *jx.Encoder) { e.Str(req.Description) })
					}
				})
			})
		})
		if brand != "" {
			e.Field("application_context", func(e *jx.Encoder) {
				e.Obj(func(e *jx.Encoder) {
					e.Field("brand_name", func(e *jx.Encoder) { e.Str(brand) })
					e.Field("shipping_preference", func(e *jx.Encoder) { e.Str("NO_SHIPPING") })
				})
			})
		}
	})
	return e.Bytes()
}

type orderResponse struct {
	ID     string
	Status string
}

func decodeOrder(b []byte) (orderResponse, error) {
	var o orderResponse
	err := jx.DecodeBytes(b).Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			o.ID, err = d.Str()
		case "status":
			o.Status, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	return o, err
}

func decodeToken(b []byte) (string, error) {
	var token string
	err := jx.DecodeBytes(b).Obj(func(d *jx.Decoder, key string) error {
		if key != "access_token" {
			return d.Skip()
		}
		var err error
		token, err = d.Str()
		return err
	})
	return token, err
}

// decodeCapture extracts the capture result from a capture-order response.
// Only the first capture of the first purchase unit is considered.
func decodeCapture(b []byte) (*payment.CaptureResult, error) {
	res := &payment.CaptureResult{}
	var given, surname string
	err := jx.DecodeBytes(b).Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			res.IntentID, err = d.Str()
		case "status":
			var s string
			s, err = d.Str()
			res.Status = payment.IntentStatus(s)
		case "payer":
			err = d.Obj(func(d *jx.Decoder, key string) error {
				switch key {
				case "email_address":
					var err error
					res.PayerEmail, err = d.Str()
					return err
				case "name":
					return d.Obj(func(d *jx.Decoder, key string) error {
						var err error
						switch key {
						case "given_name":
							given, err = d.Str()
						case "surname":
							surname, err = d.Str()
						default:
							err = d.Skip()
						}
						return err
					})
				default:
					return d.Skip()
				}
			})
		case "purchase_units":
			err = d.Arr(func(d *jx.Decoder) error {
				return d.Obj(func(d *jx.Decoder, key string) error {
					if key != "payments" {
						return d.Skip()
					}
					return d.Obj(func(d *jx.Decoder, key string) error {
						if key != "captures" {
							return d.Skip()
						}
						return d.Arr(func(d *jx.Decoder) error {
							if res.CaptureID != "" {
								return d.Skip()
							}
							return decodeCaptureEntry(d, res)
						})
					})
				})
			})
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	res.PayerName = strings.TrimSpace(given + " " + surname)
	return res, nil
}

func decodeCaptureEntry(d *jx.Decoder, res *payment.CaptureResult) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "id":
			id, err := d.Str()
			res.CaptureID = id
			return err
		case "create_time":
			s, err := d.Str()
			if err != nil {
				return err
			}
			t, err := time.Parse(time.RFC3339, s)
			if err != nil {
				return errors.Wrap(err, "create_time")
			}
			res.CapturedAt = t.UTC()
			return nil
		case "amount":
			return d.Obj(func(d *jx.Decoder, key string) error {
				switch key {
				case "currency_code":
					v, err := d.Str()
					res.Currency = v
					return err
				case "value":
					v, err := d.Str()
					if err != nil {
						return err
					}
					if res.Amount, err = decimal.NewFromString(v); err != nil {
						return errors.Wrap(err, "amount")
					}
					return nil
				default:
					return d.Skip()
				}
			})
		default:
			return d.Skip()
		}
	})
}
