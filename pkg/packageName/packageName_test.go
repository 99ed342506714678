package packageName

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNameHelpers(t *testing.T) {
	assert.Equal(t, "/Game/Maps", LongPackagePath("/Game/Maps/Arena"))
	assert.Equal(t, "Arena", ShortName("/Game/Maps/Arena"))
	assert.Equal(t, "/Game/Maps/Arena.Arena", ObjectPath("/Game/Maps/Arena", "Arena"))
	assert.Equal(t, "/Game/A", ObjectPathToPackageName("/Game/A.B:C"))
	assert.Equal(t, "C", ObjectPathToObjectName("/Game/A.B:C"))
	assert.Equal(t, "/Game/A.A", ExportTextPathToObjectPath("StaticMesh'/Game/A.A'"))
	assert.True(t, IsChildPath("/Game/Maps/Arena", "/Game/Maps/"))
	assert.False(t, IsChildPath("/Game/MapsOld", "/Game/Maps"))
	assert.Equal(t, "", ParentPath("/Game"))
	assert.True(t, IsValidLongPackageName("/Game/A"))
	assert.False(t, IsValidLongPackageName("/Game"))
	assert.False(t, IsValidLongPackageName("/Game/A.A"))
	assert.True(t, IsPackageExtension(".UMAP"))
	assert.True(t, IsScriptPackage("/Script/Engine"))
}

func TestMountTable(t *testing.T) {
	content := t.TempDir()
	plugin := filepath.Join(content, "Plugins", "Fx")
	m := NewMountTable()
	_, err := m.Mount("/Game/", content)
	require.NoError(t, err)
	_, err = m.Mount("Fx", plugin)
	require.NoError(t, err)

	name, err := m.FilenameToLongPackageName(filepath.Join(content, "Maps", "Arena.umap"))
	require.NoError(t, err)
	assert.Equal(t, "/Game/Maps/Arena", name)

	name, err = m.FilenameToLongPackageName(filepath.Join(plugin, "Spark.uasset"))
	require.NoError(t, err)
	assert.Equal(t, "/Fx/Spark", name, "nested mount wins")

	file, err := m.LongPackageNameToFilename("/Game/Maps/Arena", MapExtension)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(content, "Maps", "Arena.umap"), file)

	p, err := m.DirectoryToPackagePath(content)
	require.NoError(t, err)
	assert.Equal(t, "/Game", p)

	_, err = m.FilenameToLongPackageName(filepath.Join(content, "readme.txt"))
	assert.ErrorIs(t, err, ErrNotPackageFile)
	_, err = m.FilenameToLongPackageName("/elsewhere/X.uasset")
	assert.ErrorIs(t, err, ErrNotMounted)

	assert.Equal(t, []string{"/Fx", "/Game"}, m.Roots())
	_, ok := m.Unmount("/Fx")
	assert.True(t, ok)
	assert.Equal(t, []string{"/Game"}, m.Roots())
}
