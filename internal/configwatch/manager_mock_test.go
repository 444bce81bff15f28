package configwatch

import (
	"context"

	"riceserver/internal/theme"

	"github.com/stretchr/testify/mock"
)

type mockManager struct {
	mock.Mock
}

func (manager *mockManager) Config() theme.Config {
	args := manager.Called()
	return args.Get(0).(theme.Config)
}

func (manager *mockManager) LoadTheme(name string) error {
	return manager.Called(name).Error(0)
}

func (manager *mockManager) RemoveTheme(name string) {
	manager.Called(name)
}

func (manager *mockManager) AddAlbum(name string) error {
	return manager.Called(name).Error(0)
}

func (manager *mockManager) RemoveAlbum(name string) {
	manager.Called(name)
}

func (manager *mockManager) RenameAlbum(oldName, newName string) (bool, error) {
	args := manager.Called(oldName, newName)
	return args.Bool(0), args.Error(1)
}

func (manager *mockManager) LoadAlbumTheme(album, name string) error {
	return manager.Called(album, name).Error(0)
}

func (manager *mockManager) RemoveAlbumTheme(album, name string) {
	manager.Called(album, name)
}

func (manager *mockManager) LoadModule(name string) (*theme.Module, error) {
	args := manager.Called(name)
	module, _ := args.Get(0).(*theme.Module)
	return module, args.Error(1)
}

func (manager *mockManager) RemoveModule(name string) {
	manager.Called(name)
}

func (manager *mockManager) ReloadBaseStyle() error {
	return manager.Called().Error(0)
}

func (manager *mockManager) ResetBaseStyle() {
	manager.Called()
}

func (manager *mockManager) Apply(ctx context.Context, request theme.ApplyRequest) (theme.ApplyResult, error) {
	args := manager.Called(ctx, request)
	return args.Get(0).(theme.ApplyResult), args.Error(1)
}
