package session

import "sync"

// Conn 本地连接的最小接口
// 由 transport 层实现，orchestrator 只通过它向客户端下发事件
type Conn interface {
	ID() int64
	UserID() int64
	Emit(event string, payload any) error
}

// Registry 进程内会话注册表
// 维护连接 -> 用户、连接 -> 已加入房间、房间 -> 本地成员三组映射
// 纯内存，不跨进程共享，连接断开或进程退出即销毁
type Registry struct {
	mu    sync.RWMutex
	conns map[int64]*entry
	rooms map[string]map[int64]Conn // room -> connID -> Conn
}

type entry struct {
	conn   Conn
	userID int64
	rooms  map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[int64]*entry),
		rooms: make(map[string]map[int64]Conn),
	}
}

// Bind 绑定连接与认证后的用户
func (r *Registry) Bind(conn Conn, userID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.conns[conn.ID()] = &entry{
		conn:   conn,
		userID: userID,
		rooms:  make(map[string]struct{}),
	}
}

// JoinRoom 将连接加入房间
// 未绑定的连接直接忽略
func (r *Registry) JoinRoom(conn Conn, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.conns[conn.ID()]
	if !ok {
		return
	}

	e.rooms[room] = struct{}{}
	if _, ok := r.rooms[room]; !ok {
		r.rooms[room] = make(map[int64]Conn)
	}
	r.rooms[room][conn.ID()] = conn
}

// LeaveAll 将连接移出所有房间并解除绑定，返回离开的房间列表
// 断开连接时 orchestrator 以该返回值为准做清理
func (r *Registry) LeaveAll(conn Conn) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.conns[conn.ID()]
	if !ok {
		return nil
	}

	left := make([]string, 0, len(e.rooms))
	for room := range e.rooms {
		left = append(left, room)
		if members, ok := r.rooms[room]; ok {
			delete(members, conn.ID())
			if len(members) == 0 {
				delete(r.rooms, room)
			}
		}
	}

	delete(r.conns, conn.ID())
	return left
}

// LocalMembers 返回房间内的本地连接
func (r *Registry) LocalMembers(room string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.rooms[room]
	if !ok {
		return nil
	}

	conns := make([]Conn, 0, len(members))
	for _, conn := range members {
		conns = append(conns, conn)
	}
	return conns
}

// UserOf 返回连接绑定的用户，未绑定返回 0
func (r *Registry) UserOf(conn Conn) int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if e, ok := r.conns[conn.ID()]; ok {
		return e.userID
	}
	return 0
}

// Count 当前绑定的连接数
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
