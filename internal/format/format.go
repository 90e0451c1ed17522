// Package format renders values for display in Vietnamese.
package format

import (
	"math"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Placeholder is shown for absent values.
const Placeholder = "—"

var printer = message.NewPrinter(language.Vietnamese)

// Number formats v with Vietnamese thousands separators ("1.234.567") and
// at most two fraction digits ("12,5").
func Number(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Placeholder
	}
	return printer.Sprint(number.Decimal(v, number.MaxFractionDigits(2)))
}

// NumberPtr formats an optional number, rendering nil as the placeholder.
func NumberPtr(v *float64) string {
	if v == nil {
		return Placeholder
	}
	return Number(*v)
}

// VND formats an amount in đồng, rounded to whole units.
func VND(v float64) string {
	return Number(math.Round(v)) + " ₫"
}

// VNDPtr formats an optional amount.
func VNDPtr(v *float64) string {
	if v == nil {
		return Placeholder
	}
	return VND(*v)
}

// Percent formats a percentage value such as a VAT rate.
func Percent(v float64) string {
	return Number(v) + "%"
}

// Text returns s, or the placeholder when blank.
func Text(s string) string {
	if strings.TrimSpace(s) == "" {
		return Placeholder
	}
	return s
}

// Date reformats a stored date or timestamp as dd/mm/yyyy.
func Date(s string) string {
	if s == "" {
		return Placeholder
	}
	for _, layout := range []string{"2006-01-02 15:04:05", time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("02/01/2006")
		}
	}
	return s
}

var statusLabels = map[string]string{
	// quotations
	"draft":    "Nháp",
	"sent":     "Đã gửi",
	"accepted": "Đã chấp nhận",
	"rejected": "Từ chối",
	"expired":  "Hết hạn",
	// orders
	"pending":   "Chờ xác nhận",
	"confirmed": "Đã xác nhận",
	"shipping":  "Đang giao",
	"delivered": "Đã giao",
	"cancelled": "Đã hủy",
	// payment
	"unpaid":  "Chưa thanh toán",
	"partial": "Thanh toán một phần",
	"paid":    "Đã thanh toán",
}

var stageLabels = map[string]string{
	"lead":        "Tiềm năng",
	"qualified":   "Đã đánh giá",
	"proposal":    "Gửi đề xuất",
	"negotiation": "Đàm phán",
	"won":         "Thành công",
	"lost":        "Thất bại",
}

// Status returns the Vietnamese label for a document or payment status.
func Status(s string) string {
	if l, ok := statusLabels[s]; ok {
		return l
	}
	return Text(s)
}

// Stage returns the Vietnamese label for a pipeline stage.
func Stage(s string) string {
	if l, ok := stageLabels[s]; ok {
		return l
	}
	return Text(s)
}
