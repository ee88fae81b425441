package adapter

// View ABIs of the contracts the indexer reads from. Only the functions
// that are actually called are listed.

const erc20ViewABI = `[
  {"type":"function","name":"decimals","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
  {"type":"function","name":"symbol","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]}
]`

const uniswapV3FactoryViewABI = `[
  {"type":"function","name":"getPool","stateMutability":"view","inputs":[
    {"name":"tokenA","type":"address"},
    {"name":"tokenB","type":"address"},
    {"name":"fee","type":"uint24"}
  ],"outputs":[{"name":"pool","type":"address"}]}
]`

const uniswapV3PoolViewABI = `[
  {"type":"function","name":"liquidity","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint128"}]},
  {"type":"function","name":"token0","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
  {"type":"function","name":"token1","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
  {"type":"function","name":"slot0","stateMutability":"view","inputs":[],"outputs":[
    {"name":"sqrtPriceX96","type":"uint160"},
    {"name":"tick","type":"int24"},
    {"name":"observationIndex","type":"uint16"},
    {"name":"observationCardinality","type":"uint16"},
    {"name":"observationCardinalityNext","type":"uint16"},
    {"name":"feeProtocol","type":"uint8"},
    {"name":"unlocked","type":"bool"}
  ]}
]`

const stelePortfolioViewABI = `[
  {"type":"function","name":"getUserPortfolio","stateMutability":"view","inputs":[
    {"name":"challengeId","type":"uint256"},
    {"name":"user","type":"address"}
  ],"outputs":[
    {"name":"tokenAddresses","type":"address[]"},
    {"name":"amounts","type":"uint256[]"}
  ]}
]`
