package service

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/d60-Lab/medorder/internal/model"
	"github.com/d60-Lab/medorder/internal/queue"
	"github.com/d60-Lab/medorder/internal/repository"
	"github.com/d60-Lab/medorder/pkg/logger"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// jsonName 把 required_without 参数里的 Go 字段名换成 json 名
func jsonName(goField string) string {
	if f, ok := reflect.TypeOf(OrderInput{}).FieldByName(goField); ok {
		return strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
	}
	return goField
}

// OrderInput 下单表单，字段声明顺序决定报错优先级
type OrderInput struct {
	FullName       string `json:"full_name" form:"full_name" validate:"required"`
	CompanyName    string `json:"company_name" form:"company_name"`
	CompanyPhone   string `json:"company_phone" form:"company_phone"`
	CompanyAddress string `json:"company_address" form:"company_address" validate:"required_without=HomeAddress"`
	HomeAddress    string `json:"home_address" form:"home_address"`
	HomePhone      string `json:"home_phone" form:"home_phone"`
	ContactName    string `json:"contact_name" form:"contact_name" validate:"required"`
	ContactPhone   string `json:"contact_phone" form:"contact_phone" validate:"required"`
	ContactEmail   string `json:"contact_email" form:"contact_email" validate:"required,email"`
	Product        string `json:"product" form:"product" validate:"required"`
	Quantity       int    `json:"quantity" form:"quantity" validate:"min=1,max=999"`
}

func (in *OrderInput) normalize() {
	for _, p := range []*string{
		&in.FullName, &in.CompanyName, &in.CompanyPhone, &in.CompanyAddress,
		&in.HomeAddress, &in.HomePhone, &in.ContactName, &in.ContactPhone,
		&in.ContactEmail, &in.Product,
	} {
		*p = strings.TrimSpace(*p)
	}
}

// Validate 返回第一个不合法字段的 *ValidationError
func (in *OrderInput) Validate() error {
	in.normalize()
	if err := validate.Struct(in); err != nil {
		return fromValidator(err)
	}
	return nil
}

func (in *OrderInput) toModel() *model.Order {
	return &model.Order{
		Product:        in.Product,
		Quantity:       in.Quantity,
		FullName:       in.FullName,
		CompanyName:    in.CompanyName,
		CompanyPhone:   in.CompanyPhone,
		CompanyAddress: in.CompanyAddress,
		HomeAddress:    in.HomeAddress,
		HomePhone:      in.HomePhone,
		ContactName:    in.ContactName,
		ContactPhone:   in.ContactPhone,
		ContactEmail:   in.ContactEmail,
		Status:         model.OrderStatusPending,
	}
}

// OrderService 订单服务
type OrderService interface {
	SubmitOrder(ctx context.Context, in OrderInput) (*model.Order, error)
	// SubmitOrderWithLicense 先校验订单与执照文件，再依次落库；文件保存失败时仍返回已创建的订单
	SubmitOrderWithLicense(ctx context.Context, in OrderInput, license UploadInput) (*model.Order, *model.File, error)
	ListOrders(ctx context.Context, orderID *int64) ([]model.Order, error)
	GetOrder(ctx context.Context, orderID int64) (*model.Order, error)
	SetStatus(ctx context.Context, orderID int64, status model.OrderStatus) (*model.Order, error)
}

// ChangeHook 订单或文件写入成功后调用，用于使派生数据（统计缓存）失效
type ChangeHook func(ctx context.Context)

type orderService struct {
	storage repository.Storage
	files   FileService
	queue   queue.Queue
	hooks   []ChangeHook
}

// NewOrderService files 可为 nil，此时不支持随单上传执照；q 为 nil 时不发通知
func NewOrderService(storage repository.Storage, files FileService, q queue.Queue, hooks ...ChangeHook) OrderService {
	return &orderService{storage: storage, files: files, queue: q, hooks: hooks}
}

func runHooks(ctx context.Context, hooks []ChangeHook) {
	for _, h := range hooks {
		h(ctx)
	}
}

func (s *orderService) SubmitOrder(ctx context.Context, in OrderInput) (*model.Order, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	order := in.toModel()
	if err := s.storage.CreateOrder(ctx, order); err != nil {
		return nil, err
	}
	runHooks(ctx, s.hooks)
	s.enqueue(ctx, *order, "")
	return order, nil
}

func (s *orderService) SubmitOrderWithLicense(ctx context.Context, in OrderInput, license UploadInput) (*model.Order, *model.File, error) {
	if s.files == nil {
		return nil, nil, fmt.Errorf("file service not configured")
	}
	if err := in.Validate(); err != nil {
		return nil, nil, err
	}
	file, err := s.files.Prepare(license)
	if err != nil {
		return nil, nil, err
	}

	order := in.toModel()
	if err := s.storage.CreateOrder(ctx, order); err != nil {
		return nil, nil, err
	}
	defer runHooks(ctx, s.hooks)

	file.OrderID = &order.ID
	if err := s.storage.SaveFile(ctx, file, license.Content); err != nil {
		logger.FromContext(ctx).Error("save license failed",
			zap.Int64("order_id", order.ID),
			zap.String("filename", license.Filename),
			zap.Error(err),
		)
		s.enqueue(ctx, *order, "")
		return order, nil, err
	}

	s.enqueue(ctx, *order, file.OriginalName)
	return order, file, nil
}

// enqueue 通知任务入队失败只记日志，不影响下单结果
func (s *orderService) enqueue(ctx context.Context, order model.Order, licenseFile string) {
	if s.queue == nil {
		return
	}
	job := queue.Job{Order: order, LicenseFile: licenseFile, EnqueuedAt: time.Now().UTC()}
	if err := s.queue.Enqueue(context.WithoutCancel(ctx), job); err != nil {
		logger.FromContext(ctx).Warn("enqueue notification failed",
			zap.Int64("order_id", order.ID),
			zap.Error(err),
		)
	}
}

func (s *orderService) ListOrders(ctx context.Context, orderID *int64) ([]model.Order, error) {
	return s.storage.ListOrders(ctx, repository.OrderFilter{OrderID: orderID})
}

// GetOrder 不存在时返回 ErrNotFound
func (s *orderService) GetOrder(ctx context.Context, orderID int64) (*model.Order, error) {
	orders, err := s.storage.ListOrders(ctx, repository.OrderFilter{OrderID: &orderID})
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, repository.ErrNotFound
	}
	return &orders[0], nil
}

func (s *orderService) SetStatus(ctx context.Context, orderID int64, status model.OrderStatus) (*model.Order, error) {
	status = model.OrderStatus(strings.TrimSpace(string(status)))
	if !status.Valid() {
		return nil, newValidationError("status", fmt.Sprintf("status must be one of %v", model.OrderStatuses))
	}
	order, err := s.storage.UpdateOrder(ctx, orderID, repository.OrderPatch{Status: &status})
	if err != nil {
		return nil, err
	}
	runHooks(ctx, s.hooks)
	return order, nil
}
