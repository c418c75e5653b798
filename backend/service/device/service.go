package device

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"momsvpn/backend/domain"
	"momsvpn/backend/logging"
	"momsvpn/backend/repository"
)

const (
	recordQueueSize = 256
	recordTimeout   = 5 * time.Second
)

type observation struct {
	token string
	ip    string
	info  domain.DeviceInfo
}

// Service 设备遥测：记录订阅拉取的客户端
type Service struct {
	repo      repository.DeviceRepository
	directory Directory
	logger    zerolog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan observation
	worker sync.WaitGroup
}

// NewService 创建设备服务并启动后台记录协程；directory 可为 nil
func NewService(repo repository.DeviceRepository, directory Directory) *Service {
	s := &Service{
		repo:      repo,
		directory: directory,
		logger:    logging.Component("device"),
		queue:     make(chan observation, recordQueueSize),
	}
	s.worker.Add(1)
	go s.drain()
	return s
}

func (s *Service) drain() {
	defer s.worker.Done()
	for o := range s.queue {
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		s.Observe(ctx, o.token, o.ip, o.info)
		cancel()
	}
}

// ObserveAsync 把记录放入后台队列，不阻塞订阅响应；队列满或已关闭时丢弃
func (s *Service) ObserveAsync(token, ip string, info domain.DeviceInfo) {
	if s == nil || s.repo == nil {
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.queue <- observation{token: token, ip: ip, info: info}:
	default:
		s.logger.Warn().Str("token", domain.TokenHint(token)).Msg("device queue full, record dropped")
	}
}

// Close 停止接收新记录并等待队列写完
func (s *Service) Close() {
	if s == nil {
		return
	}
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()
	s.worker.Wait()
}

// Observe 记录一次订阅拉取；失败只记录日志
func (s *Service) Observe(ctx context.Context, token, ip string, info domain.DeviceInfo) {
	if s == nil || s.repo == nil {
		return
	}
	hint := domain.TokenHint(token)
	_, err := s.repo.Touch(ctx, domain.Device{
		ID:         domain.StableDeviceID(token, info.UserAgent),
		TokenHint:  hint,
		DeviceName: info.DeviceName,
		OSVersion:  info.OSVersion,
		AppName:    info.AppName,
		AppVersion: info.AppVersion,
		UserAgent:  info.UserAgent,
		IPAddress:  ip,
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("token", hint).Msg("record device failed")
	}
}

// Recent 最近活跃的设备
func (s *Service) Recent(ctx context.Context, limit int) ([]domain.Device, error) {
	return s.repo.List(ctx, limit)
}

// LastDevices 优先查询设备目录，失败或为空时回退到最后一次 User-Agent 的描述
func (s *Service) LastDevices(ctx context.Context, panelUUID, lastUserAgent string) string {
	if s != nil && s.directory != nil && strings.TrimSpace(panelUUID) != "" {
		models, err := s.directory.Devices(ctx, panelUUID)
		if err != nil {
			s.logger.Debug().Err(err).Str("user", panelUUID).Msg("device directory lookup failed")
		} else if list := FormatDeviceList(models); list != "" {
			return list
		}
	}
	return Describe(lastUserAgent)
}
