package notify

import (
	"strings"
	"text/template"
	"time"

	"github.com/d60-Lab/medorder/internal/model"
)

var funcs = template.FuncMap{
	"orNA": func(s string) string {
		if strings.TrimSpace(s) == "" {
			return "N/A"
		}
		return s
	},
	"jst": func(t time.Time) string {
		loc := time.FixedZone("JST", 9*60*60)
		return t.In(loc).Format("2006/01/02 15:04:05")
	},
}

var (
	adminSubject = template.Must(template.New("adminSubject").Funcs(funcs).
			Parse(`[{{.Brand}}] 新規注文 #{{.Order.ID}} - {{.Order.FullName}}様`))

	adminBody = template.Must(template.New("adminBody").Funcs(funcs).Parse(`新しい注文が入りました。

注文ID: {{.Order.ID}}
注文日時: {{jst .Order.CreatedAt}}

■ 商品情報
商品: {{orNA .Order.Product}}
数量: {{.Order.Quantity}}

■ お客様情報
氏名: {{orNA .Order.FullName}}
医院・クリニック名: {{orNA .Order.CompanyName}}
医院電話番号: {{orNA .Order.CompanyPhone}}
医院住所: {{orNA .Order.CompanyAddress}}
自宅住所: {{orNA .Order.HomeAddress}}
自宅電話番号: {{orNA .Order.HomePhone}}

■ 連絡者情報
連絡者氏名: {{orNA .Order.ContactName}}
連絡先電話番号: {{orNA .Order.ContactPhone}}
連絡先Email: {{orNA .Order.ContactEmail}}

ライセンスファイル: {{if .LicenseFile}}添付あり ({{.LicenseFile}}){{else}}添付なし{{end}}

管理画面で詳細を確認してください。
`))

	customerSubject = template.Must(template.New("customerSubject").Funcs(funcs).
			Parse(`[{{.Brand}}] ご注文確認 #{{.Order.ID}}`))

	customerBody = template.Must(template.New("customerBody").Funcs(funcs).Parse(`{{.Order.FullName}} 様

この度は{{.Brand}}商品をご注文いただき、誠にありがとうございます。

ご注文を受け付けいたしました。
注文ID: {{.Order.ID}}

■ ご注文内容
商品: {{orNA .Order.Product}}
数量: {{.Order.Quantity}}

担当者より改めてご連絡させていただきます。

何かご不明な点がございましたら、お気軽にお問い合わせください。
`))
)

type mailData struct {
	Brand       string
	Order       model.Order
	LicenseFile string
}

func render(t *template.Template, data mailData) (string, error) {
	var sb strings.Builder
	if err := t.Execute(&sb, data); err != nil {
		return "", err
	}
	return sb.String(), nil
}
