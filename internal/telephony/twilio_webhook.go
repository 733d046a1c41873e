package telephony

import (
	"errors"
	"net/url"
	"strings"
)

// TwilioInboundForm captures the subset of voice webhook fields we care about.
// Twilio sends application/x-www-form-urlencoded by default.
// Ref: https://www.twilio.com/docs/voice/twiml
//
// Keep it minimal and provider-adapter-only.
// Routing decisions are not made here.

type TwilioInboundForm struct {
	CallSid       string
	AccountSid    string
	From          string
	To            string
	Direction     string
	CallStatus    string
	ApiVersion    string
	CallerName    string
	FromCity      string
	FromCountry   string
	ToCity        string
	ToCountry     string
	ForwardedFrom string
}

func ParseTwilioInboundForm(payload WebhookPayload) (TwilioInboundForm, error) {
	values, err := url.ParseQuery(string(payload.Body))
	if err != nil {
		return TwilioInboundForm{}, err
	}
	f := TwilioInboundForm{
		CallSid:       values.Get("CallSid"),
		AccountSid:    values.Get("AccountSid"),
		From:          normalizePhone(values.Get("From")),
		To:            normalizePhone(values.Get("To")),
		Direction:     values.Get("Direction"),
		CallStatus:    values.Get("CallStatus"),
		ApiVersion:    values.Get("ApiVersion"),
		CallerName:    values.Get("CallerName"),
		FromCity:      values.Get("FromCity"),
		FromCountry:   values.Get("FromCountry"),
		ToCity:        values.Get("ToCity"),
		ToCountry:     values.Get("ToCountry"),
		ForwardedFrom: normalizePhone(values.Get("ForwardedFrom")),
	}
	if f.CallSid == "" {
		return TwilioInboundForm{}, errors.New("telephony: twilio webhook missing CallSid")
	}
	return f, nil
}

func normalizePhone(s string) string {
	s = strings.TrimSpace(s)
	// Twilio sometimes sends "anonymous" or empty; keep as-is.
	return s
}
