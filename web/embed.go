// Package web 提供登录页模板和静态资源
package web

import (
	"embed"
	"html/template"
	"io/fs"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
)

//go:embed templates/*.html static/*
var embeddedFS embed.FS

// StaticMode 静态文件服务模式
type StaticMode string

const (
	// ModeEmbed 嵌入模式，使用 go:embed 嵌入的文件
	ModeEmbed StaticMode = "embed"
	// ModeDisk 磁盘模式，直接读取磁盘文件（支持热更新）
	ModeDisk StaticMode = "disk"
)

// StaticConfig 静态文件服务配置
type StaticConfig struct {
	Mode     StaticMode
	DiskPath string // 磁盘模式下 web 目录的路径
	Prefix   string // 静态资源 URL 前缀
}

// DefaultConfig 返回默认配置
func DefaultConfig() *StaticConfig {
	return &StaticConfig{
		Mode:     ModeEmbed,
		DiskPath: "./web",
		Prefix:   "/cas/static/",
	}
}

// root 根据模式返回 web 目录
func (c *StaticConfig) root() fs.FS {
	if c.Mode == ModeDisk {
		return os.DirFS(c.DiskPath)
	}
	return embeddedFS
}

// Templates 解析登录相关的页面模板
func Templates(config *StaticConfig) (*template.Template, error) {
	if config == nil {
		config = DefaultConfig()
	}
	return template.ParseFS(config.root(), "templates/*.html")
}

// StaticHandler 静态资源处理器
type StaticHandler struct {
	config *StaticConfig
	fs     http.FileSystem
}

// NewStaticHandler 创建静态资源处理器
func NewStaticHandler(config *StaticConfig) (*StaticHandler, error) {
	if config == nil {
		config = DefaultConfig()
	}
	sub, err := fs.Sub(config.root(), "static")
	if err != nil {
		return nil, err
	}
	return &StaticHandler{config: config, fs: http.FS(sub)}, nil
}

// Serve 返回静态资源，不存在时 404
func (h *StaticHandler) Serve(c *gin.Context) {
	path := strings.TrimPrefix(c.Param("filepath"), "/")
	if path == "" || strings.HasSuffix(path, "/") {
		c.Status(http.StatusNotFound)
		return
	}
	f, err := h.fs.Open(path)
	if err != nil {
		c.Status(http.StatusNotFound)
		return
	}
	f.Close()

	c.Header("Cache-Control", "public, max-age=3600")
	c.FileFromFS(path, h.fs)
}

// SetupRoutes 注册静态资源路由
func (h *StaticHandler) SetupRoutes(router gin.IRouter) {
	router.GET(h.config.Prefix+"*filepath", h.Serve)
	router.HEAD(h.config.Prefix+"*filepath", h.Serve)
}
