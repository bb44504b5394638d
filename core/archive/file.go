package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/m3rciful/orderbot/core/session"
)

// File writes one <orderId>.json document per completed order.
type File struct {
	dir string
}

// NewFile archives into dir, creating it on first use.
func NewFile(dir string) *File {
	return &File{dir: dir}
}

func (f *File) path(orderID string) (string, error) {
	if orderID == "" || strings.ContainsAny(orderID, `/\`) || strings.Contains(orderID, "..") {
		return "", fmt.Errorf("archive: invalid order id %q", orderID)
	}
	return filepath.Join(f.dir, orderID+".json"), nil
}

// Archive implements Archiver. An existing record is left untouched.
func (f *File) Archive(_ context.Context, order session.Order) error {
	path, err := f.path(order.OrderID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return fmt.Errorf("archive: create dir: %w", err)
	}
	data, err := json.MarshalIndent(order, "", "  ")
	if err != nil {
		return fmt.Errorf("archive: encode %s: %w", order.OrderID, err)
	}
	tmp, err := os.CreateTemp(f.dir, ".order-*")
	if err != nil {
		return fmt.Errorf("archive: temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("archive: write %s: %w", order.OrderID, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("archive: close %s: %w", order.OrderID, err)
	}
	// Link fails when the target exists, which keeps the first record.
	if err := os.Link(tmp.Name(), path); err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil
		}
		return fmt.Errorf("archive: publish %s: %w", order.OrderID, err)
	}
	return nil
}

// Load implements Reader.
func (f *File) Load(_ context.Context, orderID string) (session.Order, error) {
	path, err := f.path(orderID)
	if err != nil {
		return session.Order{}, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return session.Order{}, ErrNotFound
	}
	if err != nil {
		return session.Order{}, fmt.Errorf("archive: read %s: %w", orderID, err)
	}
	var order session.Order
	if err := json.Unmarshal(data, &order); err != nil {
		return session.Order{}, fmt.Errorf("archive: decode %s: %w", orderID, err)
	}
	return order, nil
}
