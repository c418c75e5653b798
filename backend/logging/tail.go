package logging

import (
	"errors"
	"io"
	"os"
)

const maxLogChunkBytes int64 = 512 * 1024

// Chunk 日志文件的增量读取结果
type Chunk struct {
	Path string `json:"path,omitempty"`
	From int64  `json:"from"`
	To   int64  `json:"to"`
	End  int64  `json:"end"`
	Lost bool   `json:"lost"`
	Text string `json:"text"`

	Error string `json:"error,omitempty"`
}

// Since 从 offset 开始读取日志文件（文件被截断时从头读并标记 lost）
func Since(path string, since int64) Chunk {
	chunk := Chunk{Path: path}
	if path == "" {
		return chunk
	}

	from, to, end, lost, text, err := readLogChunk(path, since, maxLogChunkBytes)
	chunk.From = from
	chunk.To = to
	chunk.End = end
	chunk.Lost = lost
	chunk.Text = text
	if err != nil {
		chunk.Error = err.Error()
	}
	return chunk
}

func readLogChunk(path string, since, maxBytes int64) (from, to, end int64, lost bool, text string, err error) {
	if maxBytes <= 0 {
		return 0, 0, 0, false, "", errors.New("maxBytes must be > 0")
	}
	if since < 0 {
		since = 0
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, 0, 0, false, "", nil
		}
		return 0, 0, 0, false, "", err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return 0, 0, 0, false, "", err
	}
	end = st.Size()

	from = since
	if from > end {
		from = 0
		lost = true
	}
	if from == end {
		return from, from, end, lost, "", nil
	}

	if _, err := f.Seek(from, io.SeekStart); err != nil {
		return 0, 0, 0, false, "", err
	}
	data, err := io.ReadAll(io.LimitReader(f, min(end-from, maxBytes)))
	if err != nil {
		return 0, 0, 0, false, "", err
	}
	to = from + int64(len(data))
	return from, to, end, lost, string(data), nil
}
