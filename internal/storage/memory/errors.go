package memory

import "github.com/go-faster/errors"

func errDuplicateNumber(n string) error {
	return errors.Errorf("order number %s already exists", n)
}

func errInvalidItem(productID string) error {
	return errors.Errorf("invalid item for product %s", productID)
}
