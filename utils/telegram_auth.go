package utils

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sort"
	"strconv"
	"strings"
	"time"
)

// TelegramLogin is the payload of the Telegram login widget.
type TelegramLogin struct {
	ID        int64  `json:"id" validate:"required"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
	PhotoURL  string `json:"photo_url"`
	AuthDate  int64  `json:"auth_date" validate:"required"`
	Hash      string `json:"hash" validate:"required"`
}

var (
	ErrTelegramHash    = errors.New("telegram login hash mismatch")
	ErrTelegramExpired = errors.New("telegram login data is too old")
)

// VerifyTelegramLogin checks the widget signature made with the bot token and
// rejects data older than maxAge.
func VerifyTelegramLogin(botToken string, l TelegramLogin, maxAge time.Duration, now time.Time) error {
	fields := map[string]string{
		"id":        strconv.FormatInt(l.ID, 10),
		"auth_date": strconv.FormatInt(l.AuthDate, 10),
	}
	for k, v := range map[string]string{
		"first_name": l.FirstName,
		"last_name":  l.LastName,
		"username":   l.Username,
		"photo_url":  l.PhotoURL,
	} {
		if v != "" {
			fields[k] = v
		}
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]string, len(keys))
	for i, k := range keys {
		lines[i] = k + "=" + fields[k]
	}

	secret := sha256.Sum256([]byte(botToken))
	mac := hmac.New(sha256.New, secret[:])
	mac.Write([]byte(strings.Join(lines, "\n")))
	want := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(want), []byte(strings.ToLower(l.Hash))) {
		return ErrTelegramHash
	}
	if maxAge > 0 && now.Sub(time.Unix(l.AuthDate, 0)) > maxAge {
		return ErrTelegramExpired
	}
	return nil
}

// FullName joins the first and last names from the widget.
func (l TelegramLogin) FullName() string {
	return strings.TrimSpace(l.FirstName + " " + l.LastName)
}
