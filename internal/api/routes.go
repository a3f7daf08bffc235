package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/patchwork-project/patchwork/internal/util"
)

// handleHealthz returns a simple health check response.
func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "patchwork",
	})
}

// handleStatus returns server identity plus host resource usage.
func (s *Server) handleStatus(c *gin.Context) {
	srv := s.cfg.GetServer()
	sysInfo := util.GetSystemInfo()
	snap := s.router.Snapshot()

	status := gin.H{
		"description":      srv.StatusDescription,
		"protocol_version": srv.ProtocolVersion,
		"uptime_seconds":   int64(time.Since(s.startedAt).Seconds()),
		"shards":           len(snap.Shards),
		"anchors":          len(snap.Anchors),
		"connections":      len(s.msgr.Snapshot()),
		"hostname":         sysInfo.Hostname,
		"cpu_model":        sysInfo.CPUModel,
		"cpu_cores":        sysInfo.CPUCores,
		"total_memory_mb":  sysInfo.TotalMemory,
	}

	if cpuUsage, err := util.GetCPUUsage(); err == nil {
		status["cpu_percent"] = cpuUsage
	}
	if memUsage, err := util.GetMemoryUsage(); err == nil {
		status["memory"] = memUsage
	}

	c.JSON(http.StatusOK, status)
}

// handleShards returns the shard list and anchor table.
func (s *Server) handleShards(c *gin.Context) {
	snap := s.router.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"shards":  snap.Shards,
		"anchors": snap.Anchors,
	})
}

// handleConnections returns the messenger's registered connections.
func (s *Server) handleConnections(c *gin.Context) {
	conns := s.msgr.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"count":       len(conns),
		"connections": conns,
	})
}
