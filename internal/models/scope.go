package models

// Scope narrows every read to one teacher's data or widens it to the full
// admin view. It is a closed sum: construct only via TeacherScope or
// AdminScope so the two branches stay exhaustive.
type Scope struct {
	teacherID string
	admin     bool
}

// TeacherScope restricts queries to classes, sessions and students that
// belong to the given teacher.
func TeacherScope(teacherID string) Scope {
	return Scope{teacherID: teacherID}
}

// AdminScope covers all data in the system.
func AdminScope() Scope {
	return Scope{admin: true}
}

// IsAdmin reports whether the scope covers all teachers.
func (s Scope) IsAdmin() bool {
	return s.admin
}

// TeacherID returns the scoping teacher and true when the scope is
// teacher-bound.
func (s Scope) TeacherID() (string, bool) {
	if s.admin {
		return "", false
	}
	return s.teacherID, true
}

// CacheKey returns a stable identifier for cache key construction.
func (s Scope) CacheKey() string {
	if s.admin {
		return "admin"
	}
	return "teacher:" + s.teacherID
}

// ScopeForUser derives the statistics scope from JWT claims: admins see
// everything, teachers see their own data.
func ScopeForUser(claims *JWTClaims) Scope {
	if claims != nil && claims.IsAdmin {
		return AdminScope()
	}
	if claims == nil {
		return TeacherScope("")
	}
	return TeacherScope(claims.UserID)
}
