package model

import "time"

// Role API Key 角色，权限严格递增：writer < admin < sa
type Role string

const (
	RoleWriter Role = "writer"
	RoleAdmin  Role = "admin"
	RoleSA     Role = "sa"
)

// 每个角色固定对应一条凭证记录
const (
	KeyNameWriter = "billing-writer"
	KeyNameAdmin  = "admin-ui"
	KeyNameSA     = "sa"
)

var roleRank = map[Role]int{
	RoleWriter: 1,
	RoleAdmin:  2,
	RoleSA:     3,
}

// Rank 未知角色返回 0
func (r Role) Rank() int {
	return roleRank[r]
}

func (r Role) Valid() bool {
	return r.Rank() > 0
}

// Satisfies 判断当前角色是否满足任一允许角色（高等级包含低等级）
//
// allowed 为空表示任意合法角色都可以
func (r Role) Satisfies(allowed ...Role) bool {
	if !r.Valid() {
		return false
	}
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if a.Valid() && r.Rank() >= a.Rank() {
			return true
		}
	}
	return false
}

// KeyNameForRole 角色对应的凭证名
func KeyNameForRole(r Role) string {
	switch r {
	case RoleWriter:
		return KeyNameWriter
	case RoleAdmin:
		return KeyNameAdmin
	case RoleSA:
		return KeyNameSA
	}
	return ""
}

// APIKey 只保存 bcrypt 哈希，不保存明文
type APIKey struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string    `gorm:"type:varchar(64);not null;uniqueIndex" json:"name"`
	KeyHash   string    `gorm:"type:varchar(100);not null" json:"-"`
	Role      Role      `gorm:"type:varchar(16);not null" json:"role"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (APIKey) TableName() string {
	return "api_keys"
}
