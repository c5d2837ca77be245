package gateway

import (
	"fmt"
	"strings"
	"time"

	"github.com/beevik/etree"
)

// parseBCA reads a BCA virtual account payment flag request
func parseBCA(body []byte) (*Callback, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(body); err != nil {
		return nil, fmt.Errorf("failed to parse XML: %v", err)
	}

	root := doc.FindElement("//PaymentFlagRequest")
	if root == nil {
		return nil, fmt.Errorf("no PaymentFlagRequest element found in XML")
	}

	text := func(path string) string {
		if el := root.FindElement("./" + path); el != nil {
			return strings.TrimSpace(el.Text())
		}
		return ""
	}

	amount, err := parseRupiah(text("PaidAmount"))
	if err != nil {
		return nil, fmt.Errorf("PaidAmount: %w", err)
	}
	paidAt, err := time.ParseInLocation("02/01/2006 15:04:05", text("TransactionDate"), wib)
	if err != nil {
		return nil, fmt.Errorf("TransactionDate: %w", err)
	}

	requestID := text("RequestID")
	return &Callback{
		TransactionID:  requestID,
		VirtualAccount: text("CompanyCode") + text("CustomerNumber"),
		Amount:         amount,
		PaidAt:         paidAt.UTC(),
		Paid:           text("FlagAdvice") == "Y",
		RequestID:      requestID,
	}, nil
}

// BCAResponse builds the payment flag acknowledgement BCA expects. Status "00"
// accepts the payment and "01" rejects it.
func BCAResponse(cb *Callback, accepted bool, reason string) ([]byte, error) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	resp := doc.CreateElement("PaymentFlagResponse")

	var requestID, va string
	if cb != nil {
		requestID = cb.RequestID
		va = cb.VirtualAccount
	}
	resp.CreateElement("RequestID").SetText(requestID)
	resp.CreateElement("VirtualAccount").SetText(va)

	status := resp.CreateElement("PaymentFlagStatus")
	if accepted {
		status.SetText("00")
	} else {
		status.SetText("01")
	}
	resp.CreateElement("Reason").SetText(reason)

	doc.Indent(2)
	out, err := doc.WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("failed to write XML: %v", err)
	}
	return out, nil
}
