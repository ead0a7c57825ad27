package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/medorder/internal/queue"
	"github.com/d60-Lab/medorder/internal/repository"
	"github.com/d60-Lab/medorder/internal/testutil"
)

const testMaxUpload = 1 << 20

func newTestStorage(t *testing.T) *repository.GormStorage {
	t.Helper()
	s := repository.NewGormStorage(testutil.NewSQLiteDB(t), 5*time.Second)
	require.NoError(t, s.InitSchema())
	return s
}

type testDeps struct {
	storage *repository.GormStorage
	queue   *queue.MemoryQueue
	files   FileService
	orders  OrderService
}

func newTestDeps(t *testing.T) testDeps {
	t.Helper()
	st := newTestStorage(t)
	q := queue.NewMemoryQueue(1000)
	files := NewFileService(st, testMaxUpload)
	return testDeps{
		storage: st,
		queue:   q,
		files:   files,
		orders:  NewOrderService(st, files, q),
	}
}

func validInput() OrderInput {
	return OrderInput{
		FullName:       "Taro Tanaka",
		ContactName:    "Taro Tanaka",
		ContactPhone:   "090-0000-0000",
		ContactEmail:   "taro@example.com",
		CompanyAddress: "Tokyo",
		Product:        "eye-booster",
		Quantity:       2,
	}
}

func queueLen(t *testing.T, q queue.Queue) int64 {
	t.Helper()
	n, err := q.Len(context.Background())
	require.NoError(t, err)
	return n
}
