// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package session

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio/v2"

	"islander-chat/pkg/errors"
)

// FileSnapshotStore 文件快照存储：每 thread 一个 JSON 文件，rename 原子替换。
// 单机部署下重启可恢复，不依赖外部服务。
type FileSnapshotStore struct {
	dir string
}

// NewFileSnapshotStore 创建文件快照存储，目录不存在时创建
func NewFileSnapshotStore(dir string) (*FileSnapshotStore, error) {
	if dir == "" {
		dir = "data/snapshots"
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrap(err, "创建快照目录失败")
	}
	return &FileSnapshotStore{dir: dir}, nil
}

// Get 实现 SnapshotStore；文件缺失返回 (nil, nil)，JSON 损坏返回 ErrSnapshotCorrupt
func (f *FileSnapshotStore) Get(ctx context.Context, threadID string) (*Snapshot, error) {
	data, err := os.ReadFile(f.path(threadID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "读取快照文件失败")
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, errors.Wrapf(errors.ErrSnapshotCorrupt, "thread %s", threadID)
	}
	if snap.ThreadID == "" {
		return nil, errors.Wrapf(errors.ErrSnapshotCorrupt, "thread %s: 缺少 thread_id", threadID)
	}
	return &snap, nil
}

// Put 实现 SnapshotStore；先写临时文件再 rename，读取方永远看不到半个快照
func (f *FileSnapshotStore) Put(ctx context.Context, snap *Snapshot) error {
	if snap == nil {
		return nil
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return errors.Wrap(err, "序列化快照失败")
	}
	return renameio.WriteFile(f.path(snap.ThreadID), data, 0644)
}

// Close 实现 SnapshotStore
func (f *FileSnapshotStore) Close() error { return nil }

// path thread_id 映射为文件路径；非安全字符替换为下划线
func (f *FileSnapshotStore) path(threadID string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, threadID)
	return filepath.Join(f.dir, safe+".json")
}
