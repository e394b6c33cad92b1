package config

// MaxChunkBytes returns the chunk memory bound in bytes
func (c *EngineConfig) MaxChunkBytes() int64 {
	return int64(c.MaxChunkMB) << 20
}
