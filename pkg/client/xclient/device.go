package xclient

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/omeyang/finkit/pkg/storage/xvault"
)

const deviceIDKey = "device/id"

// DeviceInfo 客户端自我标识，随认证头上报给服务器。
type DeviceInfo struct {
	Client   string // 客户端名，如 "FinKit"
	Device   string // 设备名，默认取主机名
	DeviceID string // 设备唯一标识，首次生成后持久化
	Version  string
}

// defaultDeviceInfo 组装默认设备标识。DeviceID 优先从加密存储取出，
// 没有则生成并写回，保证同一设备跨进程稳定。
func defaultDeviceInfo(store xvault.Store, version string) (*DeviceInfo, error) {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "finkit-client"
	}

	id, err := loadOrCreateDeviceID(store)
	if err != nil {
		return nil, err
	}
	return &DeviceInfo{
		Client:   "FinKit",
		Device:   host,
		DeviceID: id,
		Version:  version,
	}, nil
}

func loadOrCreateDeviceID(store xvault.Store) (string, error) {
	if store == nil {
		return uuid.NewString(), nil
	}
	raw, err := store.Get(context.Background(), deviceIDKey)
	if err == nil && len(raw) > 0 {
		return string(raw), nil
	}
	if err != nil && !errors.Is(err, xvault.ErrKeyNotFound) {
		return "", fmt.Errorf("xclient: load device id: %w", err)
	}
	id := uuid.NewString()
	if err := store.Set(context.Background(), deviceIDKey, []byte(id)); err != nil {
		return "", fmt.Errorf("xclient: persist device id: %w", err)
	}
	return id, nil
}

// authorizationHeader 组装 MediaBrowser 风格的客户端标识头。
// 注意这里只有设备元数据，不含 Token。
func (d *DeviceInfo) authorizationHeader() string {
	return fmt.Sprintf(`MediaBrowser Client=%q, Device=%q, DeviceId=%q, Version=%q`,
		d.Client, d.Device, d.DeviceID, d.Version)
}
