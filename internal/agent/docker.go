package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/client"
)

// DockerAgent reports aggregate container stats from the local docker
// daemon: container count, CPU and memory pressure, network and block I/O.
type DockerAgent struct {
	id       string
	interval int
	cli      *client.Client
}

func init() {
	Register("docker", func(id string, intervalSeconds int) (Agent, error) {
		cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
		if err != nil {
			return nil, fmt.Errorf("failed to create docker client: %v", err)
		}
		return &DockerAgent{id: id, interval: intervalSeconds, cli: cli}, nil
	})
}

func (a *DockerAgent) Describe() Descriptor {
	return Descriptor{
		ID:              a.id,
		Kind:            "docker",
		IntervalSeconds: a.interval,
		ConfigSchema: map[string]string{
			"host": "docker daemon address override (defaults to DOCKER_HOST)",
		},
	}
}

func (a *DockerAgent) Collect(ctx context.Context, settings map[string]string) (map[string]float64, error) {
	containers, err := a.cli.ContainerList(ctx, types.ContainerListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %v", err)
	}

	var (
		cpuPercent float64
		memPercent float64
		netRx      uint64
		netTx      uint64
		blockRead  uint64
		blockWrite uint64
	)

	for _, c := range containers {
		stats, err := a.containerStats(ctx, c.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to read stats for %s: %v", c.ID[:12], err)
		}
		cpuPercent += cpuPercentUnix(stats)
		if stats.MemoryStats.Limit > 0 {
			memPercent += float64(stats.MemoryStats.Usage) / float64(stats.MemoryStats.Limit) * 100.0
		}
		for _, nw := range stats.Networks {
			netRx += nw.RxBytes
			netTx += nw.TxBytes
		}
		for _, io := range stats.BlkioStats.IoServiceBytesRecursive {
			switch io.Op {
			case "Read":
				blockRead += io.Value
			case "Write":
				blockWrite += io.Value
			}
		}
	}

	return map[string]float64{
		"containers_running": float64(len(containers)),
		"cpu_percent":        cpuPercent,
		"memory_percent":     memPercent,
		"network_rx_bytes":   float64(netRx),
		"network_tx_bytes":   float64(netTx),
		"block_read_bytes":   float64(blockRead),
		"block_write_bytes":  float64(blockWrite),
	}, nil
}

func (a *DockerAgent) containerStats(ctx context.Context, containerID string) (types.StatsJSON, error) {
	var stats types.StatsJSON
	resp, err := a.cli.ContainerStats(ctx, containerID, false)
	if err != nil {
		return stats, err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return stats, err
	}
	return stats, nil
}

func cpuPercentUnix(stats types.StatsJSON) float64 {
	cpuDelta := float64(stats.CPUStats.CPUUsage.TotalUsage) - float64(stats.PreCPUStats.CPUUsage.TotalUsage)
	systemDelta := float64(stats.CPUStats.SystemUsage) - float64(stats.PreCPUStats.SystemUsage)
	if systemDelta > 0.0 && cpuDelta > 0.0 {
		return (cpuDelta / systemDelta) * float64(len(stats.CPUStats.CPUUsage.PercpuUsage)) * 100.0
	}
	return 0.0
}
