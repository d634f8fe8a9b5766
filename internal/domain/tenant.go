package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/DRSN-tech/vision-service/pkg/e"
)

const sellerKeyPrefix = "seller_"

var tenantKeyRe = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// SellerKey возвращает ключ тенанта для продавца: seller_<id>.
func SellerKey(sellerID int64) string {
	return sellerKeyPrefix + strconv.FormatInt(sellerID, 10)
}

// NormalizeTenantKey приводит идентификатор продавца к ключу тенанта.
// Принимает как "42", так и "seller_42".
func NormalizeTenantKey(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if id < 0 {
			return "", fmt.Errorf("%w: %q", e.ErrInvalidTenant, raw)
		}
		return SellerKey(id), nil
	}

	if err := ValidateTenantKey(raw); err != nil {
		return "", err
	}
	return raw, nil
}

// ValidateTenantKey проверяет, что ключ безопасно использовать в путях файловой системы.
func ValidateTenantKey(key string) error {
	if !tenantKeyRe.MatchString(key) {
		return fmt.Errorf("%w: %q", e.ErrInvalidTenant, key)
	}
	return nil
}
