package shopify

import (
	"strconv"
	"strings"
	"time"

	"github.com/kevin07696/subscription-scheduler/internal/domain"
)

// Note attribute names carried on every subscription order. Reconciliation
// reads them back to match orders to subscriptions.
const (
	attrSubscriptionID = "SubscriptionId"
	attrShippingDate   = "ShippingDate"
	attrFrequency      = "Frequency"
	attrIdempotencyKey = "IdempotencyKey"
)

type orderEnvelope struct {
	Order order `json:"order"`
}

type ordersEnvelope struct {
	Orders []order `json:"orders"`
}

type order struct {
	CreatedAt         *time.Time      `json:"created_at,omitempty"`
	Customer          *customer       `json:"customer,omitempty"`
	ShippingAddress   *address        `json:"shipping_address,omitempty"`
	BillingAddress    *address        `json:"billing_address,omitempty"`
	Name              string          `json:"name,omitempty"`
	FinancialStatus   string          `json:"financial_status,omitempty"`
	FulfillmentStatus string          `json:"fulfillment_status,omitempty"`
	Note              string          `json:"note,omitempty"`
	LineItems         []lineItem      `json:"line_items,omitempty"`
	NoteAttributes    []noteAttribute `json:"note_attributes,omitempty"`
	ID                int64           `json:"id,omitempty"`
}

type lineItem struct {
	VariantID int64 `json:"variant_id"`
	Quantity  int   `json:"quantity"`
}

type customer struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
}

type noteAttribute struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type address struct {
	FirstName string `json:"first_name"`
	Address1  string `json:"address1"`
	Address2  string `json:"address2"`
	City      string `json:"city"`
	Province  string `json:"province"`
	Zip       string `json:"zip"`
	Phone     string `json:"phone"`
	Country   string `json:"country"`
}

func buildOrder(req *domain.OrderRequest, country string) (orderEnvelope, error) {
	variantID, err := strconv.ParseInt(req.VariantID, 10, 64)
	if err != nil {
		return orderEnvelope{}, domain.WrapError(domain.ErrorCodeBackendRejected,
			"variant id is not numeric", err).
			WithDetail("variant_id", req.VariantID)
	}

	first, last := splitName(req.Address.Name)
	addr := toAddress(req.Address, req.Customer.Contact, country)

	return orderEnvelope{Order: order{
		LineItems: []lineItem{{VariantID: variantID, Quantity: req.Quantity}},
		Customer: &customer{
			FirstName: first,
			LastName:  last,
			Email:     req.Customer.Email,
		},
		FinancialStatus:   "paid",
		FulfillmentStatus: "unfulfilled",
		Note:              "Subscription order (" + req.Product + ")",
		NoteAttributes: []noteAttribute{
			{Name: attrSubscriptionID, Value: req.SubscriptionID},
			{Name: attrShippingDate, Value: req.ShippingDate.UTC().Format("2006-01-02T15:04:05.000Z07:00")},
			{Name: attrFrequency, Value: req.DeliveryDays},
			{Name: attrIdempotencyKey, Value: req.IdempotencyKey},
		},
		ShippingAddress: &addr,
		BillingAddress:  &addr,
	}}, nil
}

func splitName(name string) (string, string) {
	parts := strings.Fields(name)
	switch len(parts) {
	case 0:
		return "Customer", ""
	case 1:
		return parts[0], ""
	default:
		return parts[0], strings.Join(parts[1:], " ")
	}
}

func toAddress(a domain.Address, fallbackPhone, country string) address {
	name := a.Name
	if name == "" {
		name = "Customer"
	}
	phone := a.Phone
	if phone == "" {
		phone = fallbackPhone
	}
	if a.Country != "" {
		country = a.Country
	}
	return address{
		FirstName: name,
		Address1:  a.Line1,
		Address2:  a.Line2,
		City:      a.City,
		Province:  a.State,
		Zip:       a.Pincode,
		Phone:     phone,
		Country:   country,
	}
}

func (a *address) toDomain() domain.Address {
	if a == nil {
		return domain.Address{}
	}
	return domain.Address{
		Name:    a.FirstName,
		Line1:   a.Address1,
		Line2:   a.Address2,
		City:    a.City,
		State:   a.Province,
		Pincode: a.Zip,
		Phone:   a.Phone,
		Country: a.Country,
	}
}

func (o order) attribute(name string) string {
	for _, attr := range o.NoteAttributes {
		if attr.Name == name {
			return attr.Value
		}
	}
	return ""
}

// toBackendOrder returns false for orders not placed by the scheduler
func (o order) toBackendOrder() (domain.BackendOrder, bool) {
	subID := o.attribute(attrSubscriptionID)
	rawDate := o.attribute(attrShippingDate)
	if subID == "" || rawDate == "" {
		return domain.BackendOrder{}, false
	}
	shippingDate, err := time.Parse(time.RFC3339Nano, rawDate)
	if err != nil {
		return domain.BackendOrder{}, false
	}

	bo := domain.BackendOrder{
		BackendOrderID:  strconv.FormatInt(o.ID, 10),
		BackendOrderRef: o.Name,
		SubscriptionID:  subID,
		ShippingDate:    shippingDate.UTC(),
		Address:         o.ShippingAddress.toDomain(),
	}
	if o.CreatedAt != nil {
		bo.CreatedAt = o.CreatedAt.UTC()
	}
	return bo, true
}
