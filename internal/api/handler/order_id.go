package handler

import (
	"bytes"
	"errors"
	"strconv"
	"strings"
)

var (
	errInvalidOrderID  = errors.New("orderId must be an integer")
	errInvalidQuantity = errors.New("quantity must be an integer")
)

// orderID 兼容数字与数字字符串两种 JSON 写法
type orderID int64

func (o *orderID) UnmarshalJSON(b []byte) error {
	s := string(bytes.Trim(b, `"`))
	if s == "" || s == "null" {
		*o = 0
		return nil
	}
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return errInvalidOrderID
	}
	*o = orderID(v)
	return nil
}

func (o *orderID) ptr() *int64 {
	if o == nil || *o == 0 {
		return nil
	}
	v := int64(*o)
	return &v
}

// quantity 兼容 2 与 "2" 两种 JSON 写法
type quantity int

func (q *quantity) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(bytes.Trim(b, `"`)))
	if s == "" || s == "null" {
		*q = 0
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return errInvalidQuantity
	}
	*q = quantity(v)
	return nil
}
